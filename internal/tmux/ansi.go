package tmux

import "strings"

// StripANSI removes ANSI escape codes from content using an O(n) single-pass
// algorithm. Captured panes carry color codes even with capture-pane's plain
// output when the target CLI writes raw sequences.
//
// Intentionally not regex-based: complex ANSI regex patterns can backtrack
// catastrophically on malformed escape sequences.
func StripANSI(content string) string {
	// Fast path: \x1b is ESC, \x9B is the 8-bit CSI control character
	if strings.IndexByte(content, '\x1b') < 0 && strings.IndexByte(content, '\x9B') < 0 {
		return content
	}

	var b strings.Builder
	b.Grow(len(content))

	i := 0
	for i < len(content) {
		if content[i] == '\x1b' {
			// CSI sequence: ESC [ ... letter
			if i+1 < len(content) && content[i+1] == '[' {
				j := i + 2
				for j < len(content) {
					c := content[j]
					if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
						j++
						break
					}
					j++
				}
				i = j
				continue
			}
			// OSC sequence: ESC ] ... BEL or ST
			if i+1 < len(content) && content[i+1] == ']' {
				bellPos := strings.Index(content[i:], "\x07")
				if bellPos != -1 {
					i += bellPos + 1
					continue
				}
				stPos := strings.Index(content[i:], "\x1b\\")
				if stPos != -1 {
					i += stPos + 2
					continue
				}
			}
			// Other escape sequence: ESC followed by single char
			if i+1 < len(content) {
				i += 2
				continue
			}
			// Truncated escape at end of capture
			i++
			continue
		}
		if content[i] == '\x9B' {
			j := i + 1
			for j < len(content) {
				c := content[j]
				if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
					j++
					break
				}
				j++
			}
			i = j
			continue
		}
		b.WriteByte(content[i])
		i++
	}

	return b.String()
}
