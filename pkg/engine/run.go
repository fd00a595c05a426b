package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/observability"
	"github.com/rhuss/werkstatt/pkg/sandbox"
	"github.com/rhuss/werkstatt/pkg/tools"
)

// run holds the state of one task execution.
type run struct {
	engine *Engine
	id     string
	task   string
	yield  func(api.Event) bool
	cancel context.CancelFunc
	log    *slog.Logger

	// stopped is set once the consumer refused an event.
	stopped bool

	handle     *sandbox.Handle
	previewURL string
	session    tools.Session
	caps       *tools.CapabilitySet
	conv       *api.Conversation

	turns     int
	failures  int
	finalText string
	err       error
}

// execute drives the state machine. Closing is reached on every path,
// including a panic in a later state.
func (r *run) execute(ctx context.Context) {
	defer r.closeSession()

	st := stateInit
	for st != stateDone {
		r.log.Debug("state", "state", st.String())
		switch st {
		case stateInit:
			st = r.init()
		case stateProvisioning:
			st = r.provision(ctx)
		case stateDiscovering:
			st = r.discover(ctx)
		case stateRunning:
			st = r.loop(ctx)
		case stateCompleting:
			st = r.complete()
		case stateFailed:
			st = r.fail()
		case stateClosing:
			r.closeSession()
			st = stateDone
		}
	}
}

// emit delivers ev to the consumer. Once the consumer stops, the run is
// cancelled and later events are dropped.
func (r *run) emit(ev api.Event) bool {
	if r.stopped {
		return false
	}
	if !r.yield(ev) {
		r.stopped = true
		r.cancel()
		return false
	}
	return true
}

func (r *run) status(format string, args ...any) {
	r.emit(api.Status{Message: fmt.Sprintf(format, args...)})
}

// failWith records err as the cause of the run and returns stateFailed.
func (r *run) failWith(err error) state {
	r.err = err
	return stateFailed
}

func (r *run) init() state {
	cfg := r.engine.cfg
	if cfg.Preflight != nil {
		if err := cfg.Preflight(); err != nil {
			var apiErr *api.Error
			if errors.As(err, &apiErr) && apiErr.Kind == api.ErrorKindConfig {
				return r.failWith(apiErr)
			}
			return r.failWith(api.NewConfigError(err.Error()))
		}
	}
	if strings.TrimSpace(cfg.GatewayToken) == "" {
		return r.failWith(api.NewConfigError("gateway token is required"))
	}
	if strings.TrimSpace(r.task) == "" {
		return r.failWith(api.NewConfigError("task must not be empty"))
	}

	var sb strings.Builder
	data := instructionData{Task: r.task, ProjectDir: cfg.ProjectDir}
	if err := r.engine.instructions.Execute(&sb, data); err != nil {
		return r.failWith(api.NewConfigError(fmt.Sprintf("render instructions: %v", err)))
	}

	r.conv = api.NewConversation()
	if cfg.SystemPrompt != "" {
		r.conv.Append(api.Turn{Role: api.RoleSystem, Content: cfg.SystemPrompt})
	}
	r.conv.Append(api.Turn{Role: api.RoleUser, Content: sb.String()})
	return stateProvisioning
}

func (r *run) provision(ctx context.Context) state {
	cfg := r.engine.cfg

	r.status("Creating sandbox...")
	h, err := r.engine.provisioner.Ensure(ctx, cfg.Sandbox)
	if err != nil {
		return r.failWith(r.classify(ctx, "sandbox.ensure", err, api.ErrorKindProvision))
	}
	r.handle = h
	r.status("Sandbox ready!")
	r.log.Info("sandbox ready", "sandbox", h.Name, "url", h.URL, "backend", h.Backend)

	pv, err := r.engine.provisioner.EnsurePreview(ctx, h, cfg.Preview)
	if err != nil {
		return r.failWith(r.classify(ctx, "sandbox.ensure_preview", err, api.ErrorKindProvision))
	}
	r.previewURL = pv.URL
	r.status("Preview URL ready: %s", pv.URL)
	return stateDiscovering
}

func (r *run) discover(ctx context.Context) state {
	cfg := r.engine.cfg
	endpoint := r.handle.Endpoint(cfg.gatewayPath())

	session, err := r.engine.dialer.Dial(ctx, endpoint, cfg.GatewayToken)
	if err != nil {
		return r.failWith(r.classify(ctx, "gateway.connect", err, api.ErrorKindDiscovery))
	}
	r.session = session

	caps, err := session.DiscoverTools(ctx)
	if err != nil {
		return r.failWith(r.classify(ctx, "gateway.discover", err, api.ErrorKindDiscovery))
	}
	r.caps = tools.NewCapabilitySet(caps)
	r.status("%d tool(s) available: %s", r.caps.Len(), strings.Join(r.caps.Names(), ", "))
	r.log.Info("tools discovered", "count", r.caps.Len(), "endpoint", endpoint)
	return stateRunning
}

func (r *run) complete() state {
	observability.RunsTotal.WithLabelValues("completed", "").Inc()
	observability.RunTurns.Observe(float64(r.turns))
	r.log.Info("run completed", "turns", r.turns)

	r.emit(api.Completion{
		RunID:      r.id,
		Turns:      r.turns,
		Text:       r.finalText,
		PreviewURL: r.previewURL,
	})
	return stateClosing
}

func (r *run) fail() state {
	err := r.err
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		err = api.NewModelError("run failed", err)
	}
	kind := api.KindOf(err)
	observability.RunsTotal.WithLabelValues("failed", string(kind)).Inc()
	observability.RunTurns.Observe(float64(r.turns))
	r.log.Error("run failed", "kind", kind, "turns", r.turns, "error", err)

	r.emit(api.Failure{RunID: r.id, Turns: r.turns, Err: err})
	return stateClosing
}

// closeSession releases the gateway session. It runs exactly once per
// run whichever path reached it.
func (r *run) closeSession() {
	if r.session == nil {
		return
	}
	s := r.session
	r.session = nil
	if err := s.Close(); err != nil {
		r.log.Warn("closing gateway session failed", "error", err)
		return
	}
	r.log.Debug("gateway session closed")
}

// classify wraps err in an *api.Error. Errors caused by cancellation of
// ctx become canceled errors; already classified errors pass through.
func (r *run) classify(ctx context.Context, op string, err error, kind api.ErrorKind) error {
	if ctx.Err() != nil {
		return api.NewCanceledError(op, ctx.Err())
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return err
	}
	return &api.Error{Kind: kind, Op: op, Err: err}
}
