package api

import (
	"strings"
	"testing"
)

func TestNewCallID(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewCallID()
		if !IsCallID(id) {
			t.Fatalf("generated id %q is not a valid call id", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestIsCallID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"call_" + strings.Repeat("a", 24), true},
		{"call_" + strings.Repeat("a", 23), false},
		{"run_" + strings.Repeat("a", 24), false},
		{"call_" + strings.Repeat("-", 24), false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsCallID(tt.id); got != tt.want {
			t.Errorf("IsCallID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if !strings.HasPrefix(a, "run_") {
		t.Errorf("run id %q missing prefix", a)
	}
	if a == b {
		t.Error("run ids must be unique")
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(TextFragment{Text: "x"}) {
		t.Error("TextFragment is not terminal")
	}
	if !IsTerminal(Completion{}) || !IsTerminal(Failure{}) {
		t.Error("Completion and Failure are terminal")
	}
}
