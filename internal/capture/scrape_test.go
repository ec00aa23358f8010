package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const screenStatus = `
╭──────────────────────────────────────────────╮
│  Settings                                    │
│                                              │
│   Status   Config   Usage                    │
│                                              │
│  Version: 2.1.0                              │
│  Login method: Claude account                │
│  Organization: Acme Corp                     │
│  MCP servers: ✓ linear, ✗ github             │
│                                              │
│  esc to close                                │
╰──────────────────────────────────────────────╯
`

const screenUsageFull = `
╭──────────────────────────────────────────────╮
│  Settings                                    │
│                                              │
│   Status   Config   Usage                    │
│                                              │
│  Current session                             │
│  ███████░░░░░░░░░░ 42% used                  │
│  Resets in 3h12m                             │
│                                              │
│  Current week (all models)                   │
│  ██░░░░░░░░░░░░░░░ 10% used                  │
│  Resets Oct 9 at 3am                         │
│                                              │
│  Current week (Opus)                         │
│  █████░░░░░░░░░░░░ 31% used                  │
│  Resets Oct 9 at 3am                         │
│                                              │
│  esc to close                                │
╰──────────────────────────────────────────────╯
`

const screenUsageNoOpus = `
  Current session
  5% used
  Resets in 4h58m

  Current week (all models)
  0% used
  Resets Oct 12 at 12am
`

const screenUsageLoading = `
  Usage

  Loading usage data…
`

func TestScrapeStatus(t *testing.T) {
	status := ScrapeStatus(screenStatus)

	assert.Equal(t, "2.1.0", status.Version)
	assert.Equal(t, "Claude account", status.LoginMethod)
	assert.Equal(t, "Acme Corp", status.Organization)
	assert.Equal(t, []string{"linear", "github"}, status.MCPServers)
}

func TestScrapeStatusMissingLabels(t *testing.T) {
	status := ScrapeStatus("some unrelated screen\n")

	assert.Equal(t, "unknown", status.Version)
	assert.Equal(t, "unknown", status.LoginMethod)
	assert.Equal(t, "N/A", status.Organization)
	require.NotNil(t, status.MCPServers, "mcp_servers must serialize as [], not null")
	assert.Empty(t, status.MCPServers)
}

func TestScrapeStatusNoServers(t *testing.T) {
	status := ScrapeStatus("MCP servers: none\n")
	require.NotNil(t, status.MCPServers)
	assert.Empty(t, status.MCPServers)
}

func TestScrapeUsageAllBuckets(t *testing.T) {
	fields := ScrapeUsage(screenUsageFull)
	require.True(t, fields.Complete())

	require.NotNil(t, fields.Session)
	assert.Equal(t, 42, fields.Session.PctUsed)
	assert.Equal(t, "3h12m", fields.Session.Resets)

	require.NotNil(t, fields.WeekAll)
	assert.Equal(t, 10, fields.WeekAll.PctUsed)
	assert.Equal(t, "Oct 9 at 3am", fields.WeekAll.Resets)

	require.NotNil(t, fields.WeekOpus)
	assert.Equal(t, 31, fields.WeekOpus.PctUsed)
}

// Plans without an Opus bucket: the heading is simply absent and the field
// stays nil so it serializes as null.
func TestScrapeUsageWithoutOpus(t *testing.T) {
	fields := ScrapeUsage(screenUsageNoOpus)
	require.True(t, fields.Complete())

	assert.Equal(t, 5, fields.Session.PctUsed)
	assert.Equal(t, "4h58m", fields.Session.Resets)
	assert.Equal(t, 0, fields.WeekAll.PctUsed)
	assert.Equal(t, "Oct 12 at 12am", fields.WeekAll.Resets)
	assert.Nil(t, fields.WeekOpus)
}

func TestScrapeUsageLoadingScreen(t *testing.T) {
	fields := ScrapeUsage(screenUsageLoading)
	assert.False(t, fields.Complete())
	assert.Nil(t, fields.Session)
	assert.Nil(t, fields.WeekAll)
	assert.Nil(t, fields.WeekOpus)
}

// A heading that rendered before its numbers must not yield a zero bucket.
func TestScrapeUsageHeadingWithoutPercent(t *testing.T) {
	fields := ScrapeUsage("Current session\n\nsomething else\nmore text\n")
	assert.Nil(t, fields.Session)
}

// "Current session" must not match inside "Current week (all models)" scans
// and the week headings must not satisfy each other.
func TestScrapeUsageHeadingDisambiguation(t *testing.T) {
	screen := `
  Current week (all models)
  77% used
  Resets Oct 9 at 3am
`
	fields := ScrapeUsage(screen)
	assert.Nil(t, fields.Session)
	assert.Nil(t, fields.WeekOpus)
	require.NotNil(t, fields.WeekAll)
	assert.Equal(t, 77, fields.WeekAll.PctUsed)
}

func TestScrapeUsagePercentOnHeadingLine(t *testing.T) {
	fields := ScrapeUsage("Current session 12% used  Resets in 2h\n")
	require.NotNil(t, fields.Session)
	assert.Equal(t, 12, fields.Session.PctUsed)
	assert.Equal(t, "2h", fields.Session.Resets)
}

func TestScrapeUsageRejectsOutOfRangePercent(t *testing.T) {
	fields := ScrapeUsage("Current session\n250% used\n")
	assert.Nil(t, fields.Session)
}

func TestScrapeUsageStripsAnsi(t *testing.T) {
	screen := "\x1b[1mCurrent session\x1b[0m\n\x1b[32m42% used\x1b[0m\nResets in 1h\n"
	fields := ScrapeUsage(screen)
	require.NotNil(t, fields.Session)
	assert.Equal(t, 42, fields.Session.PctUsed)
	assert.Equal(t, "1h", fields.Session.Resets)
}
