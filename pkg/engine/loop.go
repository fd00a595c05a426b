package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/logging"
	"github.com/rhuss/werkstatt/pkg/observability"
	"github.com/rhuss/werkstatt/pkg/provider"
	"github.com/rhuss/werkstatt/pkg/tools"
)

// loop is the Running state: submit the conversation, dispatch the
// requested tools, append their results, repeat.
func (r *run) loop(ctx context.Context) state {
	cfg := r.engine.cfg
	prov := r.engine.provider

	caps := prov.Capabilities()
	req := &provider.Request{
		Model:  cfg.Model,
		Tools:  provider.BuildTools(r.caps.All()),
		Stream: caps.Streaming,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		req.MaxTokens = &maxTokens
	}
	if err := provider.ValidateCapabilities(caps, req); err != nil {
		return r.failWith(err)
	}

	r.status("Task: %s", r.task)

	for {
		if ctx.Err() != nil {
			return r.failWith(api.NewCanceledError("engine.running", ctx.Err()))
		}
		if r.turns >= cfg.maxTurns() {
			return r.failWith(api.NewModelError(fmt.Sprintf("max turns reached (%d)", cfg.maxTurns()), nil))
		}
		r.turns++
		r.emit(api.TurnStarted{Turn: r.turns})

		req.Messages = provider.BuildMessages(r.conv.Turns())
		decision, err := r.submit(ctx, req)
		if err != nil {
			return r.failWith(r.classify(ctx, "model.submit", err, api.ErrorKindModel))
		}

		r.conv.Append(api.Turn{
			Role:      api.RoleAssistant,
			Content:   decision.Text,
			ToolCalls: decision.ToolCalls,
		})
		if decision.Text != "" {
			r.finalText = decision.Text
		}

		if len(decision.ToolCalls) == 0 {
			return stateCompleting
		}

		for _, call := range decision.ToolCalls {
			r.emit(api.ToolCallRequested{
				Turn:      r.turns,
				CallID:    call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
			})
		}

		results := r.dispatch(ctx, decision.ToolCalls)
		if ctx.Err() != nil {
			return r.failWith(api.NewCanceledError("tools.invoke", ctx.Err()))
		}

		for _, res := range results {
			r.conv.Append(api.Turn{
				Role:       api.RoleTool,
				Content:    res.Output,
				ToolCallID: res.CallID,
				ToolName:   res.Name,
				IsError:    res.IsError,
			})
			r.emit(api.ToolResult{
				Turn:      r.turns,
				CallID:    res.CallID,
				Name:      res.Name,
				Output:    res.Output,
				IsError:   res.IsError,
				ErrorKind: res.ErrorKind,
			})

			if !res.IsError {
				r.failures = 0
				continue
			}
			r.failures++
			if r.failures >= cfg.maxFailures() {
				return r.failWith(&api.Error{
					Kind:    api.ErrorKindToolInvocation,
					Op:      "tools.invoke",
					Message: fmt.Sprintf("%d consecutive tool failures, last: %s", r.failures, logging.Truncate(res.Output, 200)),
				})
			}
		}
	}
}

// decision is the model's answer to one submission.
type decision struct {
	Text      string
	ToolCalls []api.ToolCall
}

// submit sends one request to the model backend. It is never retried.
func (r *run) submit(ctx context.Context, req *provider.Request) (*decision, error) {
	prov := r.engine.provider
	if !req.Stream {
		resp, err := prov.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Text != "" {
			r.emit(api.TextFragment{Turn: r.turns, Text: resp.Text})
		}
		return &decision{Text: resp.Text, ToolCalls: resp.ToolCalls}, nil
	}

	ch, err := prov.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		text  strings.Builder
		calls []api.ToolCall
		done  bool
	)
	for ev := range ch {
		switch ev.Type {
		case provider.EventTextDelta:
			if ev.Delta == "" {
				continue
			}
			text.WriteString(ev.Delta)
			r.emit(api.TextFragment{Turn: r.turns, Text: ev.Delta})
		case provider.EventToolCallDone:
			if ev.ToolCall != nil {
				calls = append(calls, *ev.ToolCall)
			}
		case provider.EventError:
			// Drain so the producer can exit.
			for range ch {
			}
			return nil, ev.Err
		case provider.EventDone:
			done = true
			logging.Trace(r.log, "model turn finished", "turn", r.turns, "finish_reason", ev.FinishReason)
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !done {
		return nil, api.NewModelError("model stream ended without completion", nil)
	}
	return &decision{Text: text.String(), ToolCalls: calls}, nil
}

// dispatch runs the allowed calls concurrently and returns one result
// per call in request order. Unknown tools get an unknown_tool result
// without a network call.
func (r *run) dispatch(ctx context.Context, calls []api.ToolCall) []tools.ToolResult {
	filtered := r.caps.Filter(calls)
	results := make([]tools.ToolResult, len(calls))

	var g errgroup.Group
	g.SetLimit(r.engine.cfg.maxParallel())

	for i, call := range calls {
		if !filtered.Allowed(i) {
			observability.ToolExecutionsTotal.WithLabelValues(call.Name, string(api.ToolErrorUnknownTool)).Inc()
			r.log.Warn("model requested unknown tool", "tool", call.Name, "call_id", call.ID)
			results[i] = filtered.Rejected[i]
			continue
		}
		g.Go(func() error {
			output, err := r.session.Invoke(ctx, call)
			results[i] = tools.ResultFromError(call, output, err)
			if err != nil {
				r.log.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
			} else {
				r.log.Debug("tool call finished", "tool", call.Name, "call_id", call.ID, "output", logging.Truncate(output, 200))
			}
			return nil
		})
	}
	// Goroutines never return errors; failures are carried in results.
	_ = g.Wait()
	return results
}
