package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func sampleReport() *Report {
	return &Report{
		OK: true,
		Status: Status{
			Version:      "2.1.0",
			LoginMethod:  "Claude account",
			Organization: "Acme Corp",
			MCPServers:   []string{},
		},
		Session5h:     Bucket{PctUsed: 42, Resets: "3h12m"},
		WeekAllModels: Bucket{PctUsed: 10, Resets: "Oct 9 at 3am"},
		CapturedAt:    time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
}

func TestEncodeResultSuccess(t *testing.T) {
	payload, code := EncodeResult(sampleReport(), nil)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if decoded["ok"] != true {
		t.Errorf("ok = %v, want true", decoded["ok"])
	}
	// Absent Opus bucket must be a structural null, not a zero object.
	if v, present := decoded["week_opus"]; !present || v != nil {
		t.Errorf("week_opus = %v (present=%v), want null", v, present)
	}
	if !strings.Contains(string(payload), `"mcp_servers":[]`) {
		t.Errorf("empty mcp_servers must serialize as [], got %s", payload)
	}
	if strings.Contains(string(payload), "\n") {
		t.Errorf("envelope must be a single line: %q", payload)
	}
}

func TestEncodeResultOpusBucket(t *testing.T) {
	report := sampleReport()
	report.WeekOpus = &Bucket{PctUsed: 31, Resets: "Oct 9 at 3am"}

	payload, code := EncodeResult(report, nil)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(string(payload), `"week_opus":{"pct_used":31`) {
		t.Errorf("opus bucket missing from envelope: %s", payload)
	}
}

func TestEncodeResultFailures(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		wantExit int
	}{
		{ErrInternal, 1},
		{ErrTmuxNotFound, 2},
		{ErrClaudeNotFound, 3},
		{ErrAuthRequired, 4},
		{ErrBootFailure, 5},
		{ErrParseFailure, 6},
		{ErrSessionBusy, 7},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			runErr := &CaptureError{Code: tt.code, Hint: "context for a human"}
			payload, exit := EncodeResult(nil, runErr)
			if exit != tt.wantExit {
				t.Errorf("exit = %d, want %d", exit, tt.wantExit)
			}

			var env struct {
				OK    bool   `json:"ok"`
				Error string `json:"error"`
				Hint  string `json:"hint"`
			}
			if err := json.Unmarshal(payload, &env); err != nil {
				t.Fatalf("invalid failure envelope: %v", err)
			}
			if env.OK {
				t.Error("ok = true in a failure envelope")
			}
			if env.Error != string(tt.code) {
				t.Errorf("error = %q, want %q", env.Error, tt.code)
			}
			if env.Hint == "" {
				t.Error("hint is empty")
			}
		})
	}
}

// Errors outside the taxonomy collapse to internal_error, exit 1.
func TestEncodeResultUnknownError(t *testing.T) {
	payload, exit := EncodeResult(nil, errors.New("disk exploded"))
	if exit != 1 {
		t.Errorf("exit = %d, want 1", exit)
	}
	if !strings.Contains(string(payload), `"error":"internal_error"`) {
		t.Errorf("envelope = %s, want internal_error", payload)
	}
}

// A wrapped CaptureError still maps to its own code.
func TestEncodeResultWrappedCaptureError(t *testing.T) {
	inner := &CaptureError{Code: ErrBootFailure, Hint: "never booted"}
	wrapped := fmt.Errorf("run: %w", inner)

	payload, exit := EncodeResult(nil, wrapped)
	if exit != 5 {
		t.Errorf("exit = %d, want 5", exit)
	}
	if !strings.Contains(string(payload), `"error":"boot_failure"`) {
		t.Errorf("envelope = %s, want boot_failure", payload)
	}
}

func TestCaptureErrorUnwrap(t *testing.T) {
	cause := errors.New("tmux exited 1")
	err := &CaptureError{Code: ErrBootFailure, Hint: "h", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("CaptureError does not unwrap to its cause")
	}
	if msg := err.Error(); !strings.Contains(msg, "boot_failure") || !strings.Contains(msg, "tmux exited 1") {
		t.Errorf("Error() = %q, want code and cause present", msg)
	}
}
