package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/logging"
	"github.com/rhuss/werkstatt/pkg/observability"
	"github.com/rhuss/werkstatt/pkg/tools"
)

// Session is an open MCP gateway session.
type Session struct {
	cs   *mcp.ClientSession
	opts Options
	log  *slog.Logger

	mu          sync.Mutex
	cachedTools []tools.Capability

	closeOnce sync.Once
	closeErr  error
}

// Ensure Session implements tools.Session at compile time.
var _ tools.Session = (*Session)(nil)

func newSession(cs *mcp.ClientSession, opts Options) *Session {
	return &Session{
		cs:   cs,
		opts: opts,
		log:  opts.Logger,
	}
}

// DiscoverTools lists the gateway's tools, normalizing every parameter
// schema. The result is cached for the lifetime of the session.
func (s *Session) DiscoverTools(ctx context.Context) ([]tools.Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cachedTools != nil {
		return s.cachedTools, nil
	}

	caps := []tools.Capability{}
	for tool, err := range s.cs.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools: %w", err)
		}
		c, convErr := convertTool(tool)
		if convErr != nil {
			return nil, fmt.Errorf("converting tool %q: %w", tool.Name, convErr)
		}
		caps = append(caps, c)
	}

	s.log.Info("discovered gateway tools", "count", len(caps))
	s.cachedTools = caps
	return caps, nil
}

// Invoke calls a tool. A result flagged as an error by the tool becomes a
// tool_rejected error; a call that produced no result becomes a
// transport error. Transient transport failures are retried up to
// MaxAttempts.
func (s *Session) Invoke(ctx context.Context, call api.ToolCall) (string, error) {
	start := time.Now()
	output, err := s.invoke(ctx, call)

	status := "ok"
	var te *api.ToolInvocationError
	if errors.As(err, &te) {
		status = string(te.Kind)
	}
	observability.ToolExecutionsTotal.WithLabelValues(call.Name, status).Inc()
	observability.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())

	return output, err
}

func (s *Session) invoke(ctx context.Context, call api.ToolCall) (string, error) {
	args := map[string]any{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", &api.ToolInvocationError{
				Kind:   api.ToolErrorRejected,
				Tool:   call.Name,
				Detail: fmt.Sprintf("invalid arguments JSON: %v", err),
				Err:    err,
			}
		}
	}

	s.log.Debug("calling tool", "tool", call.Name, "call_id", call.ID)
	if logging.TraceEnabled(s.log) {
		logging.Trace(s.log, "tool arguments", "tool", call.Name, "arguments", call.Arguments)
	}

	var result *mcp.CallToolResult
	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()

		r, err := s.cs.CallTool(callCtx, &mcp.CallToolParams{
			Name:      call.Name,
			Arguments: args,
		})
		if err != nil {
			if ctx.Err() == nil && isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = r
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(s.opts.NewBackOff(), uint64(s.opts.MaxAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		s.log.Warn("tool call failed, retrying", "tool", call.Name, "attempt", attempt, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return "", &api.ToolInvocationError{
			Kind: api.ToolErrorTransport,
			Tool: call.Name,
			Err:  err,
		}
	}

	output := renderContent(result.Content)
	if result.IsError {
		return "", &api.ToolInvocationError{
			Kind:   api.ToolErrorRejected,
			Tool:   call.Name,
			Detail: output,
		}
	}
	return output, nil
}

// Close closes the session. Only the first call has an effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		observability.GatewaySessionsActive.Dec()
		s.closeErr = s.cs.Close()
		s.log.Debug("gateway session closed", "error", s.closeErr)
	})
	return s.closeErr
}

// isTransient reports whether a failed call never reached the tool and
// can be retried safely. Timeouts are not retried: the tool may have run.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// convertTool converts an MCP Tool to a capability with a normalized schema.
func convertTool(t *mcp.Tool) (tools.Capability, error) {
	var params json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return tools.Capability{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		params = data
	}

	normalized, err := tools.NormalizeSchema(params)
	if err != nil {
		return tools.Capability{}, err
	}

	return tools.Capability{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  normalized,
	}, nil
}

// renderContent joins text content with newlines. Other content types
// are included as JSON so the model still sees them.
func renderContent(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		data, err := json.Marshal(c)
		if err != nil {
			parts = append(parts, fmt.Sprintf("[unencodable %T content]", c))
			continue
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n")
}
