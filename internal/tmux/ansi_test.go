package tmux

import "testing"

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"color codes", "\x1b[32mgreen\x1b[0m text", "green text"},
		{"bold and reset", "\x1b[1mCurrent session\x1b[0m", "Current session"},
		{"cursor movement", "\x1b[2J\x1b[H42% used", "42% used"},
		{"osc with bel", "\x1b]0;window title\x07content", "content"},
		{"osc with st", "\x1b]8;;http://x\x1b\\link", "link"},
		{"eight bit csi", "\x9b32mtext", "text"},
		{"multiline", "\x1b[1mA\x1b[0m\n\x1b[2mB\x1b[0m", "A\nB"},
		{"unterminated escape at end", "text\x1b[", "text"},
		{"lone escape", "text\x1b", "text"},
		{"empty", "", ""},
		{"unicode passthrough", "✓ linear: 42% used", "✓ linear: 42% used"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripANSI(tt.in); got != tt.want {
				t.Errorf("StripANSI(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSessionNaming(t *testing.T) {
	s := NewSession("abcd1234", "/home/user/project", 0, 0)
	if s.Name != "claudemeter_abcd1234" {
		t.Errorf("Name = %q, want claudemeter_abcd1234", s.Name)
	}
	if s.SessionName() != s.Name {
		t.Errorf("SessionName() = %q, want %q", s.SessionName(), s.Name)
	}
	// Geometry defaults apply when unset so capture output is reproducible.
	if s.Cols != 200 || s.Rows != 50 {
		t.Errorf("geometry = %dx%d, want 200x50", s.Cols, s.Rows)
	}
}
