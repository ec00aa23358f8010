package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrorCode is the fixed failure taxonomy. Each code maps to a distinct
// process exit code so callers can classify failures without parsing JSON.
type ErrorCode string

const (
	ErrInternal       ErrorCode = "internal_error"
	ErrTmuxNotFound   ErrorCode = "tmux_not_found"
	ErrClaudeNotFound ErrorCode = "claude_cli_not_found"
	ErrAuthRequired   ErrorCode = "auth_required"
	ErrBootFailure    ErrorCode = "boot_failure"
	ErrParseFailure   ErrorCode = "parse_failure"
	ErrSessionBusy    ErrorCode = "session_busy"
)

// ExitCode returns the process exit status for the code.
func (c ErrorCode) ExitCode() int {
	switch c {
	case ErrTmuxNotFound:
		return 2
	case ErrClaudeNotFound:
		return 3
	case ErrAuthRequired:
		return 4
	case ErrBootFailure:
		return 5
	case ErrParseFailure:
		return 6
	case ErrSessionBusy:
		return 7
	default:
		return 1
	}
}

// CaptureError carries a taxonomy code plus a human hint. Every failure the
// engine surfaces is one of these; the boundary converts anything else into
// ErrInternal.
type CaptureError struct {
	Code ErrorCode
	Hint string
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Hint, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Hint)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Bucket is one usage window: percent consumed plus the rendered reset text.
type Bucket struct {
	PctUsed int    `json:"pct_used"`
	Resets  string `json:"resets"`
}

// Status holds the fields scraped from the Status sub-tab.
type Status struct {
	Version      string   `json:"version"`
	LoginMethod  string   `json:"login_method"`
	Organization string   `json:"organization"`
	MCPServers   []string `json:"mcp_servers"`
}

// Report is the success envelope. WeekOpus is a pointer on purpose: the Opus
// bucket is structurally optional and must serialize as null when its heading
// is absent from the screen, never as a zero-valued bucket.
type Report struct {
	OK            bool      `json:"ok"`
	Status        Status    `json:"status"`
	Session5h     Bucket    `json:"session_5h"`
	WeekAllModels Bucket    `json:"week_all_models"`
	WeekOpus      *Bucket   `json:"week_opus"`
	CapturedAt    time.Time `json:"captured_at"`
}

type failureEnvelope struct {
	OK    bool      `json:"ok"`
	Error ErrorCode `json:"error"`
	Hint  string    `json:"hint"`
}

// EncodeResult serializes exactly one envelope per invocation and returns it
// with the matching process exit code. A non-CaptureError failure becomes
// internal_error rather than an unstructured crash.
func EncodeResult(report *Report, runErr error) ([]byte, int) {
	if runErr == nil && report != nil {
		payload, err := json.Marshal(report)
		if err != nil {
			return encodeFailure(&CaptureError{Code: ErrInternal, Hint: err.Error()})
		}
		return payload, 0
	}

	var cerr *CaptureError
	if !errors.As(runErr, &cerr) {
		hint := "unexpected failure"
		if runErr != nil {
			hint = runErr.Error()
		}
		cerr = &CaptureError{Code: ErrInternal, Hint: hint}
	}
	return encodeFailure(cerr)
}

func encodeFailure(cerr *CaptureError) ([]byte, int) {
	payload, err := json.Marshal(failureEnvelope{OK: false, Error: cerr.Code, Hint: cerr.Hint})
	if err != nil {
		// Marshaling a flat struct of strings cannot realistically fail;
		// produce a minimal envelope by hand if it somehow does.
		payload = []byte(`{"ok":false,"error":"internal_error","hint":"result encoding failed"}`)
	}
	return payload, cerr.Code.ExitCode()
}
