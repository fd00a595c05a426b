package tools

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/rhuss/werkstatt/pkg/api"
)

func testSet() *CapabilitySet {
	return NewCapabilitySet([]Capability{
		{Name: "list_dir", Description: "List a directory"},
		{Name: "writeFile", Description: "Write a file"},
		{Name: "list_dir", Description: "duplicate"},
	})
}

func TestCapabilitySet(t *testing.T) {
	s := testSet()

	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if got := s.Names(); !slices.Equal(got, []string{"list_dir", "writeFile"}) {
		t.Errorf("Names() = %v", got)
	}
	c, ok := s.Lookup("list_dir")
	if !ok || c.Description != "List a directory" {
		t.Errorf("Lookup(list_dir) = %+v, %v; first definition should win", c, ok)
	}
	if _, ok := s.Lookup("run_tests"); ok {
		t.Error("Lookup(run_tests) should fail")
	}

	names := s.Names()
	names[0] = "mutated"
	if s.Names()[0] != "list_dir" {
		t.Error("Names() must return a copy")
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name         string
		calls        []api.ToolCall
		wantRejected []int
	}{
		{
			name:  "all known",
			calls: []api.ToolCall{{ID: "c1", Name: "list_dir"}, {ID: "c2", Name: "writeFile"}},
		},
		{
			name:         "unknown in the middle",
			calls:        []api.ToolCall{{ID: "c1", Name: "list_dir"}, {ID: "c2", Name: "run_tests"}, {ID: "c3", Name: "writeFile"}},
			wantRejected: []int{1},
		},
		{
			name:         "repeated call id",
			calls:        []api.ToolCall{{ID: "dup", Name: "list_dir"}, {ID: "dup", Name: "run_tests"}},
			wantRejected: []int{1},
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := testSet().Filter(tt.calls)

			if len(result.Rejected) != len(tt.wantRejected) {
				t.Fatalf("rejected = %v, want indexes %v", result.Rejected, tt.wantRejected)
			}
			for i, call := range tt.calls {
				want := !slices.Contains(tt.wantRejected, i)
				if got := result.Allowed(i); got != want {
					t.Errorf("Allowed(%d) [%s] = %v, want %v", i, call.Name, got, want)
				}
			}
			for _, i := range tt.wantRejected {
				r := result.Rejected[i]
				if !r.IsError || r.ErrorKind != api.ToolErrorUnknownTool {
					t.Errorf("rejected result = %+v, want unknown_tool error", r)
				}
				if r.Name != tt.calls[i].Name {
					t.Errorf("rejected result name = %q, want %q", r.Name, tt.calls[i].Name)
				}
				if !strings.Contains(r.Output, "list_dir, writeFile") {
					t.Errorf("rejected output should list available tools, got %q", r.Output)
				}
			}
		})
	}
}

func TestResultFromError(t *testing.T) {
	call := api.ToolCall{ID: "c1", Name: "runCommand"}

	ok := ResultFromError(call, "done", nil)
	if ok.IsError || ok.Output != "done" || ok.CallID != "c1" {
		t.Errorf("success result = %+v", ok)
	}

	rejected := ResultFromError(call, "", &api.ToolInvocationError{Kind: api.ToolErrorRejected, Tool: "runCommand", Detail: "exit 1"})
	if !rejected.IsError || rejected.ErrorKind != api.ToolErrorRejected {
		t.Errorf("rejected result = %+v", rejected)
	}

	plain := ResultFromError(call, "", errors.New("connection reset"))
	if plain.ErrorKind != api.ToolErrorTransport {
		t.Errorf("unclassified error kind = %q, want transport", plain.ErrorKind)
	}
}
