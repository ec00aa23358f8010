package capture

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/claudemeter/claudemeter/internal/tmux"
)

// Scraper tables. Like the boot signatures, these label strings are the part
// most likely to need updating when Claude Code's rendered text changes.
var (
	statusLabelVersion      = "Version"
	statusLabelLoginMethod  = "Login method"
	statusLabelOrganization = "Organization"
	statusLabelMCPServers   = "MCP servers"

	bucketHeadingSession  = "Current session"
	bucketHeadingWeekAll  = "Current week (all models)"
	bucketHeadingWeekOpus = "Current week (Opus)"

	percentUsedRe = regexp.MustCompile(`(\d{1,3})%\s*used`)
	resetsLabel   = "Resets"
)

// statusGlyphs are the inline state markers Claude Code renders next to MCP
// server names; they are stripped so the JSON carries plain names.
var statusGlyphs = map[rune]bool{
	'✓': true, '✔': true, '✗': true, '✘': true, '✖': true,
	'●': true, '○': true, '◐': true, '⚠': true, '·': true,
}

// UsageFields holds the per-bucket scrape results. A nil bucket means its
// heading was absent from the screen, which is structurally different from a bucket
// that is present with zero usage.
type UsageFields struct {
	Session  *Bucket
	WeekAll  *Bucket
	WeekOpus *Bucket
}

// Complete reports whether both mandatory buckets were extracted.
// The Opus bucket is optional: not every plan has one.
func (u UsageFields) Complete() bool {
	return u.Session != nil && u.WeekAll != nil
}

// ScrapeStatus extracts the Status sub-tab fields from a captured screen.
// Missing labels yield placeholders, never an error: status fields are
// best-effort decoration around the usage numbers.
func ScrapeStatus(content string) Status {
	lines := cleanLines(content)

	status := Status{
		Version:      "unknown",
		LoginMethod:  "unknown",
		Organization: "N/A",
		MCPServers:   []string{},
	}

	if v := labelValue(lines, statusLabelVersion); v != "" {
		status.Version = v
	}
	if v := labelValue(lines, statusLabelLoginMethod); v != "" {
		status.LoginMethod = v
	}
	if v := labelValue(lines, statusLabelOrganization); v != "" {
		status.Organization = v
	}
	if v := labelValue(lines, statusLabelMCPServers); v != "" {
		status.MCPServers = parseMCPServers(v)
	}

	return status
}

// labelValue finds the first line containing "<label>:" and returns the
// trimmed remainder of that line.
func labelValue(lines []string, label string) string {
	needle := label + ":"
	for _, line := range lines {
		if idx := strings.Index(line, needle); idx >= 0 {
			return strings.TrimSpace(line[idx+len(needle):])
		}
	}
	return ""
}

// parseMCPServers splits the comma-separated inline server list and strips
// the per-server status glyphs. An empty list stays an empty slice so it
// serializes as [] rather than null.
func parseMCPServers(raw string) []string {
	names := []string{}
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(stripStatusGlyphs(part))
		if name == "" || strings.EqualFold(name, "none") {
			continue
		}
		names = append(names, name)
	}
	return names
}

func stripStatusGlyphs(s string) string {
	return strings.Map(func(r rune) rune {
		if statusGlyphs[r] {
			return -1
		}
		return r
	}, s)
}

// ScrapeUsage extracts the three usage buckets from a captured screen.
func ScrapeUsage(content string) UsageFields {
	lines := cleanLines(content)
	return UsageFields{
		Session:  scrapeBucket(lines, bucketHeadingSession),
		WeekAll:  scrapeBucket(lines, bucketHeadingWeekAll),
		WeekOpus: scrapeBucket(lines, bucketHeadingWeekOpus),
	}
}

// scrapeBucket locates the heading line, scans up to two lines below it for
// the percentage, then up to two lines past the percentage for the resets
// description. No percentage means no bucket: a heading alone (still
// rendering) must not produce a zero-valued bucket.
func scrapeBucket(lines []string, heading string) *Bucket {
	for i, line := range lines {
		if !containsHeading(line, heading) {
			continue
		}

		pct := -1
		pctLine := -1
		for j := i; j <= i+2 && j < len(lines); j++ {
			m := percentUsedRe.FindStringSubmatch(lines[j])
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 0 || n > 100 {
				continue
			}
			pct = n
			pctLine = j
			break
		}
		if pct < 0 {
			return nil
		}

		resets := ""
		for j := pctLine; j <= pctLine+2 && j < len(lines); j++ {
			if idx := strings.Index(lines[j], resetsLabel); idx >= 0 {
				rest := strings.TrimSpace(lines[j][idx+len(resetsLabel):])
				rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
				rest = strings.TrimPrefix(rest, "in ")
				resets = strings.TrimSpace(rest)
				break
			}
		}

		return &Bucket{PctUsed: pct, Resets: resets}
	}
	return nil
}

// containsHeading matches a bucket heading while keeping "Current session"
// from matching inside longer headings and vice versa: the session heading
// must not be immediately followed by " (".
func containsHeading(line, heading string) bool {
	idx := strings.Index(line, heading)
	if idx < 0 {
		return false
	}
	rest := line[idx+len(heading):]
	return !strings.HasPrefix(rest, " (")
}

// cleanLines strips ANSI codes and box-drawing borders, drops blank lines,
// and trims each line. Scrape windows are counted over these cleaned lines.
func cleanLines(content string) []string {
	raw := strings.Split(tmux.StripANSI(content), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		cleaned := strings.TrimSpace(stripBoxDrawing(line))
		if cleaned == "" {
			continue
		}
		lines = append(lines, cleaned)
	}
	return lines
}

var boxDrawingRunes = map[rune]bool{
	'│': true, '┃': true, '┆': true, '┊': true, '║': true,
	'─': true, '━': true, '┌': true, '┐': true, '└': true,
	'┘': true, '├': true, '┤': true, '╭': true, '╮': true,
	'╰': true, '╯': true, '╔': true, '╗': true, '╚': true, '╝': true,
}

func stripBoxDrawing(s string) string {
	return strings.Map(func(r rune) rune {
		if boxDrawingRunes[r] {
			return -1
		}
		return r
	}, s)
}
