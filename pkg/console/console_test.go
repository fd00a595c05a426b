package console

import (
	"bytes"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/rhuss/werkstatt/pkg/api"
)

func seqOf(events ...api.Event) iter.Seq[api.Event] {
	return func(yield func(api.Event) bool) {
		for _, ev := range events {
			if !yield(ev) {
				return
			}
		}
	}
}

func TestConsumeCompletion(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, Options{SandboxName: "my-nextjs-sandbox"})

	out := c.Consume(seqOf(
		api.Status{Message: "Creating sandbox..."},
		api.Status{Message: "Sandbox ready!"},
		api.TurnStarted{Turn: 1},
		api.TextFragment{Turn: 1, Text: "Let me look"},
		api.TextFragment{Turn: 1, Text: " around."},
		api.ToolCallRequested{Turn: 1, CallID: "call_1", Name: "list_dir", Arguments: `{"path":"."}`},
		api.ToolResult{Turn: 1, CallID: "call_1", Name: "list_dir", Output: "src/"},
		api.TurnStarted{Turn: 2},
		api.TextFragment{Turn: 2, Text: "Done."},
		api.Completion{RunID: "run_1", Turns: 2, Text: "Done.", PreviewURL: "https://preview.example"},
	))

	if !out.Completed || out.Err != nil {
		t.Fatalf("outcome = %+v, want completed", out)
	}
	if out.PreviewURL != "https://preview.example" || out.Turns != 2 || out.RunID != "run_1" {
		t.Errorf("outcome = %+v", out)
	}

	want := `Creating sandbox...
Sandbox ready!
--- Turn 1 ---
Let me look around.
[Tool: list_dir]
--- Turn 2 ---
Done.
Agent finished!
Preview URL: https://preview.example
Sandbox "my-nextjs-sandbox" is still running; delete it when you no longer need it.
`
	if buf.String() != want {
		t.Errorf("output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestConsumeFailure(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, Options{})

	cause := api.NewConfigError("BL_API_KEY is not set")
	out := c.Consume(seqOf(api.Failure{RunID: "run_1", Err: cause}))

	if out.Completed {
		t.Fatal("failed run reported as completed")
	}
	if !errors.Is(out.Err, cause) {
		t.Errorf("Err = %v, want %v", out.Err, cause)
	}
	if !strings.Contains(buf.String(), "Error: config error: BL_API_KEY is not set") {
		t.Errorf("output = %q", buf.String())
	}
	if !strings.Contains(buf.String(), "The sandbox is still running") {
		t.Errorf("output = %q, want sandbox notice", buf.String())
	}
}

func TestConsumeToolFailureLine(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, Options{ShowArguments: true})

	c.Consume(seqOf(
		api.ToolCallRequested{Turn: 1, CallID: "call_1", Name: "run_tests", Arguments: `{}`},
		api.ToolResult{Turn: 1, CallID: "call_1", Name: "run_tests", IsError: true,
			ErrorKind: api.ToolErrorUnknownTool, Output: "tool \"run_tests\" failed\nmore"},
		api.Completion{RunID: "run_1"},
	))

	got := buf.String()
	if !strings.Contains(got, "[Tool: run_tests] {}\n") {
		t.Errorf("missing tool line with arguments in %q", got)
	}
	if !strings.Contains(got, "[Tool: run_tests failed (unknown_tool)] tool \"run_tests\" failed\n") {
		t.Errorf("missing failure line in %q", got)
	}
	if strings.Contains(got, "more") {
		t.Errorf("failure line not cut at first line: %q", got)
	}
}

func TestConsumeStopsAtTerminalEvent(t *testing.T) {
	pulled := 0
	events := func(yield func(api.Event) bool) {
		for _, ev := range []api.Event{
			api.Completion{RunID: "run_1"},
			api.Status{Message: "late"},
		} {
			pulled++
			if !yield(ev) {
				return
			}
		}
	}

	var buf bytes.Buffer
	New(&buf, Options{}).Consume(events)
	if pulled != 1 {
		t.Errorf("pulled %d events, want 1", pulled)
	}
	if strings.Contains(buf.String(), "late") {
		t.Error("event after terminal was rendered")
	}
}

func TestConsumeWithoutTerminalEvent(t *testing.T) {
	var buf bytes.Buffer
	out := New(&buf, Options{}).Consume(seqOf(api.TextFragment{Text: "partial"}))
	if out.Completed || out.Err == nil {
		t.Fatalf("outcome = %+v, want error", out)
	}
	if buf.String() != "partial\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestColorOutput(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{Color: true}).Consume(seqOf(api.Completion{}))
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("output = %q, want ANSI sequences", buf.String())
	}
}
