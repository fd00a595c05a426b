// Package console renders a run's event stream as human-readable
// progress lines.
package console

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/fatih/color"

	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/logging"
)

// Outcome summarizes a consumed run.
type Outcome struct {
	Completed  bool
	RunID      string
	Turns      int
	PreviewURL string

	// Err is the terminal error of a failed run, or a config error when
	// the stream ended without a terminal event.
	Err error
}

// Options configure a Consumer.
type Options struct {
	// Color enables ANSI colors. The caller decides, typically from a
	// --no-color flag and whether stdout is a terminal.
	Color bool

	// ShowArguments prints tool call arguments next to the tool name.
	ShowArguments bool

	// SandboxName is mentioned in the closing line.
	SandboxName string

	Logger *slog.Logger
}

// Consumer pulls events from a run and writes them to an io.Writer.
type Consumer struct {
	out  io.Writer
	opts Options
	log  *slog.Logger

	status *color.Color
	turn   *color.Color
	tool   *color.Color
	ok     *color.Color
	fail   *color.Color
	dim    *color.Color

	// midLine is set while assistant text has been written without a
	// trailing newline.
	midLine bool
}

// New creates a Consumer writing to out.
func New(out io.Writer, opts Options) *Consumer {
	c := &Consumer{
		out:    out,
		opts:   opts,
		log:    opts.Logger,
		status: color.New(color.FgCyan),
		turn:   color.New(color.FgHiBlack),
		tool:   color.New(color.FgYellow),
		ok:     color.New(color.FgGreen, color.Bold),
		fail:   color.New(color.FgRed, color.Bold),
		dim:    color.New(color.FgHiBlack),
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	for _, col := range []*color.Color{c.status, c.turn, c.tool, c.ok, c.fail, c.dim} {
		if opts.Color {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// Consume renders events until the run ends and returns its outcome.
// Events after the terminal one are not requested.
func (c *Consumer) Consume(events iter.Seq[api.Event]) Outcome {
	next, stop := iter.Pull(events)
	defer stop()

	for {
		ev, ok := next()
		if !ok {
			c.endLine()
			c.log.Warn("event stream ended without a terminal event")
			return Outcome{Err: api.NewModelError("run ended without a result", nil)}
		}
		logging.Trace(c.log, "event", "type", ev.Type())

		switch ev := ev.(type) {
		case api.Status:
			c.endLine()
			c.status.Fprintln(c.out, ev.Message)
		case api.TurnStarted:
			c.endLine()
			c.turn.Fprintf(c.out, "--- Turn %d ---\n", ev.Turn)
		case api.TextFragment:
			fmt.Fprint(c.out, ev.Text)
			c.midLine = !strings.HasSuffix(ev.Text, "\n")
		case api.ToolCallRequested:
			c.endLine()
			c.renderToolCall(ev)
		case api.ToolResult:
			c.renderToolResult(ev)
		case api.Completion:
			c.endLine()
			c.ok.Fprintln(c.out, "Agent finished!")
			if ev.PreviewURL != "" {
				fmt.Fprintf(c.out, "Preview URL: %s\n", ev.PreviewURL)
			}
			c.leftRunning()
			return Outcome{Completed: true, RunID: ev.RunID, Turns: ev.Turns, PreviewURL: ev.PreviewURL}
		case api.Failure:
			c.endLine()
			c.fail.Fprintf(c.out, "Error: %v\n", ev.Err)
			c.leftRunning()
			return Outcome{RunID: ev.RunID, Turns: ev.Turns, Err: ev.Err}
		}
	}
}

func (c *Consumer) renderToolCall(ev api.ToolCallRequested) {
	if c.opts.ShowArguments && ev.Arguments != "" {
		c.tool.Fprintf(c.out, "[Tool: %s] ", ev.Name)
		c.dim.Fprintln(c.out, logging.Truncate(ev.Arguments, 120))
		return
	}
	c.tool.Fprintf(c.out, "[Tool: %s]\n", ev.Name)
}

func (c *Consumer) renderToolResult(ev api.ToolResult) {
	if !ev.IsError {
		c.log.Debug("tool result", "tool", ev.Name, "call_id", ev.CallID, "output", logging.Truncate(ev.Output, 200))
		return
	}
	c.fail.Fprintf(c.out, "[Tool: %s failed (%s)] ", ev.Name, ev.ErrorKind)
	c.dim.Fprintln(c.out, logging.Truncate(firstLine(ev.Output), 160))
}

func (c *Consumer) leftRunning() {
	name := "The sandbox"
	if c.opts.SandboxName != "" {
		name = fmt.Sprintf("Sandbox %q", c.opts.SandboxName)
	}
	c.dim.Fprintf(c.out, "%s is still running; delete it when you no longer need it.\n", name)
}

func (c *Consumer) endLine() {
	if c.midLine {
		fmt.Fprintln(c.out)
		c.midLine = false
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
