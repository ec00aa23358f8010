package capture

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/claudemeter/claudemeter/internal/logging"
)

var patternLog = logging.ForComponent(logging.CompScrape)

// RawSignatures holds string-form screen signatures before compilation.
// Entries prefixed "re:" are compiled as regex; everything else matches
// case-insensitively via strings.Contains. These are the most drift-prone
// part of the system: when Claude Code's rendered text changes, this table
// (or its config overrides) is what needs updating, not control flow.
type RawSignatures struct {
	// Trust matches the first-run trust prompt.
	Trust []string

	// Boot matches a stable, input-ready screen after launch.
	Boot []string

	// Auth matches sign-in / unauthorized screens.
	Auth []string

	// Loading matches the usage dialog while data is still being fetched.
	Loading []string

	// Alive matches any screen that proves the interactive session is still
	// live and responsive (health probe for session reuse).
	Alive []string
}

// DefaultRawSignatures returns the built-in signatures for Claude Code.
func DefaultRawSignatures() *RawSignatures {
	return &RawSignatures{
		Trust: []string{
			"Do you trust the files in this folder?",
		},
		// Version banner, the command hint under the input box, the
		// extended-thinking hint, and the model-thinking spinner line.
		Boot: []string{
			"Welcome to Claude Code",
			"? for shortcuts",
			"tab to toggle",
			`re:(?m)^[✳✽✶✻✢·]\s*\S+…`,
		},
		Auth: []string{
			"Select login method",
			"Sign in to Claude",
			"run claude login",
			"/login",
			"Invalid API key",
			"unauthorized",
		},
		Loading: []string{
			"Loading usage data",
			"Loading…",
			"Fetching usage",
		},
		// Boot-time indicators plus the two dialog markers: "Current
		// session" means the usage dialog is already open, "esc to close"
		// matches any open dialog.
		Alive: []string{
			"Welcome to Claude Code",
			"? for shortcuts",
			"tab to toggle",
			"Current session",
			"esc to close",
		},
	}
}

// MergeRawSignatures merges defaults with overrides and extras.
//   - A non-nil overrides field (even empty) replaces the default list.
//   - extras fields are appended after defaults or overrides.
func MergeRawSignatures(defaults, overrides, extras *RawSignatures) *RawSignatures {
	result := &RawSignatures{}

	if defaults != nil {
		result.Trust = copySlice(defaults.Trust)
		result.Boot = copySlice(defaults.Boot)
		result.Auth = copySlice(defaults.Auth)
		result.Loading = copySlice(defaults.Loading)
		result.Alive = copySlice(defaults.Alive)
	}

	if overrides != nil {
		if overrides.Trust != nil {
			result.Trust = copySlice(overrides.Trust)
		}
		if overrides.Boot != nil {
			result.Boot = copySlice(overrides.Boot)
		}
		if overrides.Auth != nil {
			result.Auth = copySlice(overrides.Auth)
		}
		if overrides.Loading != nil {
			result.Loading = copySlice(overrides.Loading)
		}
		if overrides.Alive != nil {
			result.Alive = copySlice(overrides.Alive)
		}
	}

	if extras != nil {
		result.Trust = append(result.Trust, extras.Trust...)
		result.Boot = append(result.Boot, extras.Boot...)
		result.Auth = append(result.Auth, extras.Auth...)
		result.Loading = append(result.Loading, extras.Loading...)
		result.Alive = append(result.Alive, extras.Alive...)
	}

	return result
}

// matchSet is one compiled signature class: plain substrings (matched
// case-insensitively) plus regexps.
type matchSet struct {
	substrings []string // stored lowercased
	regexps    []*regexp.Regexp
}

func (m *matchSet) matches(content, lower string) bool {
	for _, s := range m.substrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	for _, re := range m.regexps {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// Signatures holds the compiled, ready-to-use screen classifiers.
type Signatures struct {
	trust   matchSet
	boot    matchSet
	auth    matchSet
	loading matchSet
	alive   matchSet
}

func (s *Signatures) Trust(content string) bool {
	return s.trust.matches(content, strings.ToLower(content))
}

func (s *Signatures) Boot(content string) bool {
	return s.boot.matches(content, strings.ToLower(content))
}

func (s *Signatures) Auth(content string) bool {
	return s.auth.matches(content, strings.ToLower(content))
}

func (s *Signatures) Loading(content string) bool {
	return s.loading.matches(content, strings.ToLower(content))
}

func (s *Signatures) Alive(content string) bool {
	return s.alive.matches(content, strings.ToLower(content))
}

// CompileSignatures compiles raw signatures. Invalid regex entries are logged
// and skipped, never fatal: a bad config override must not break captures.
func CompileSignatures(raw *RawSignatures) *Signatures {
	if raw == nil {
		raw = DefaultRawSignatures()
	}
	return &Signatures{
		trust:   compileSet(raw.Trust),
		boot:    compileSet(raw.Boot),
		auth:    compileSet(raw.Auth),
		loading: compileSet(raw.Loading),
		alive:   compileSet(raw.Alive),
	}
}

func compileSet(patterns []string) matchSet {
	var m matchSet
	for _, p := range patterns {
		if strings.HasPrefix(p, "re:") {
			re, err := regexp.Compile(p[3:])
			if err != nil {
				patternLog.Warn("invalid_signature_regex",
					slog.String("pattern", p),
					slog.String("error", err.Error()))
				continue
			}
			m.regexps = append(m.regexps, re)
		} else {
			m.substrings = append(m.substrings, strings.ToLower(p))
		}
	}
	return m
}

func copySlice(s []string) []string {
	if s == nil {
		return nil
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}
