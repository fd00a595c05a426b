package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/logging"
	"github.com/rhuss/werkstatt/pkg/provider"
)

// ToolCallBuffer tracks incremental tool call argument assembly across
// multiple SSE chunks for a single tool call index.
type ToolCallBuffer struct {
	ID   string
	Name string
	Args strings.Builder
}

// StreamResult summarizes a parsed stream for metrics.
type StreamResult struct {
	FinishReason provider.FinishReason
	Usage        *provider.Usage
	Err          error
}

// ParseSSEStream reads Chat Completions SSE chunks from body, translates
// them to provider.Event values and sends them on ch. The channel is NOT
// closed by this function.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//
// Exactly one EventDone or EventError ends the sequence unless ctx is
// cancelled first. Malformed chunks are logged and skipped.
func ParseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.Event, log *slog.Logger) StreamResult {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &streamParser{ctx: ctx, ch: ch, log: log, toolCalls: make(map[int]*ToolCallBuffer)}
	return p.run(body)
}

type streamParser struct {
	ctx       context.Context
	ch        chan<- provider.Event
	log       *slog.Logger
	toolCalls map[int]*ToolCallBuffer

	finishReason provider.FinishReason
	usage        *provider.Usage
}

func (p *streamParser) run(body io.Reader) StreamResult {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if p.ctx.Err() != nil {
			return StreamResult{Err: p.ctx.Err()}
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		if payload == "[DONE]" {
			return p.finish()
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			p.log.Warn("skipping malformed SSE chunk",
				"error", err.Error(),
				"data", logging.Truncate(payload, 200),
			)
			continue
		}
		if !p.translateChunk(&chunk) {
			return StreamResult{Err: p.ctx.Err()}
		}
	}

	if err := scanner.Err(); err != nil {
		if p.ctx.Err() != nil {
			return StreamResult{Err: p.ctx.Err()}
		}
		return p.fail(api.NewModelError("SSE stream read error", err))
	}

	// Some backends close the connection without the [DONE] sentinel.
	if p.finishReason != "" {
		return p.finish()
	}
	return p.fail(api.NewModelError("stream ended before the model finished", nil))
}

// translateChunk converts one chunk into events. It returns false when
// the context was cancelled while sending.
func (p *streamParser) translateChunk(chunk *ChatCompletionChunk) bool {
	if chunk.Usage != nil {
		u := toUsage(chunk.Usage)
		p.usage = &u
	}
	if len(chunk.Choices) == 0 {
		return true
	}

	choice := chunk.Choices[0]
	delta := choice.Delta

	for _, tc := range delta.ToolCalls {
		buf, exists := p.toolCalls[tc.Index]
		if !exists {
			buf = &ToolCallBuffer{ID: tc.ID, Name: tc.Function.Name}
			p.toolCalls[tc.Index] = buf
		}
		if buf.Name == "" {
			buf.Name = tc.Function.Name
		}
		buf.Args.WriteString(tc.Function.Arguments)
		if !p.send(provider.Event{
			Type:          provider.EventToolCallDelta,
			ToolCallIndex: tc.Index,
			Delta:         tc.Function.Arguments,
		}) {
			return false
		}
	}

	if delta.Content != nil && *delta.Content != "" {
		if !p.send(provider.Event{Type: provider.EventTextDelta, Delta: *delta.Content}) {
			return false
		}
	}

	if choice.FinishReason != nil {
		p.finishReason = provider.FinishReason(*choice.FinishReason)
		return p.flushToolCalls()
	}
	return true
}

// flushToolCalls emits EventToolCallDone for each buffered tool call in
// index order, which is the order the model requested them in.
func (p *streamParser) flushToolCalls() bool {
	indexes := make([]int, 0, len(p.toolCalls))
	for idx := range p.toolCalls {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)

	for _, idx := range indexes {
		buf := p.toolCalls[idx]
		id := buf.ID
		if id == "" {
			id = api.NewCallID()
		}
		if !p.send(provider.Event{
			Type:          provider.EventToolCallDone,
			ToolCallIndex: idx,
			ToolCall: &api.ToolCall{
				ID:        id,
				Name:      buf.Name,
				Arguments: buf.Args.String(),
			},
		}) {
			return false
		}
		delete(p.toolCalls, idx)
	}
	return true
}

func (p *streamParser) finish() StreamResult {
	if !p.flushToolCalls() {
		return StreamResult{Err: p.ctx.Err()}
	}
	if p.finishReason == "" {
		p.finishReason = provider.FinishStop
	}
	p.send(provider.Event{Type: provider.EventDone, FinishReason: p.finishReason, Usage: p.usage})
	return StreamResult{FinishReason: p.finishReason, Usage: p.usage}
}

func (p *streamParser) fail(err error) StreamResult {
	p.send(provider.Event{Type: provider.EventError, Err: err})
	return StreamResult{Err: err}
}

func (p *streamParser) send(ev provider.Event) bool {
	select {
	case p.ch <- ev:
		return true
	case <-p.ctx.Done():
		return false
	}
}

