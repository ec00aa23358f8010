package store

import (
	"path/filepath"
	"testing"
)

func TestKeyForDeterministic(t *testing.T) {
	a := KeyFor("/home/user/project")
	b := KeyFor("/home/user/project")
	if a != b {
		t.Errorf("same path produced different keys: %q vs %q", a, b)
	}
	if len(a) != 8 {
		t.Errorf("key length = %d, want 8", len(a))
	}
	for _, r := range a {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			t.Errorf("key %q contains non-hex rune %q", a, r)
		}
	}
}

func TestKeyForDistinctPaths(t *testing.T) {
	a := KeyFor("/home/user/project-a")
	b := KeyFor("/home/user/project-b")
	if a == b {
		t.Errorf("distinct paths collided on key %q", a)
	}
}

// Unnormalized spellings of the same directory must address the same session.
func TestKeyForNormalizesPath(t *testing.T) {
	a := KeyFor("/home/user/project")
	b := KeyFor("/home/user/project/")
	c := KeyFor("/home/user/./project/../project")
	if a != b || a != c {
		t.Errorf("normalized spellings diverged: %q %q %q", a, b, c)
	}
}

func TestKeyForRelativePath(t *testing.T) {
	rel := KeyFor("subdir")
	abs, err := filepath.Abs("subdir")
	if err != nil {
		t.Fatalf("filepath.Abs: %v", err)
	}
	if rel != KeyFor(abs) {
		t.Errorf("relative path key differs from its absolute equivalent")
	}
}

func TestKeyForEmptyPath(t *testing.T) {
	a := KeyFor("")
	b := KeyFor("")
	if a != b || len(a) != 8 {
		t.Errorf("empty path must still yield a stable 8-char key, got %q / %q", a, b)
	}
}
