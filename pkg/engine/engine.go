package engine

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"
	"text/template"

	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/provider"
	"github.com/rhuss/werkstatt/pkg/sandbox"
	"github.com/rhuss/werkstatt/pkg/tools"
)

// Provisioner ensures the sandbox and its preview exist.
// *sandbox.Provisioner implements it.
type Provisioner interface {
	Ensure(ctx context.Context, d sandbox.Descriptor) (*sandbox.Handle, error)
	EnsurePreview(ctx context.Context, h *sandbox.Handle, spec sandbox.PreviewSpec) (*sandbox.PreviewEndpoint, error)
}

// Engine runs agent tasks.
type Engine struct {
	provisioner  Provisioner
	dialer       tools.Dialer
	provider     provider.Provider
	cfg          Config
	instructions *template.Template
	log          *slog.Logger
}

// New creates a new Engine. None of the collaborators may be nil.
func New(p Provisioner, d tools.Dialer, prov provider.Provider, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provisioner must not be nil")
	}
	if d == nil {
		return nil, fmt.Errorf("engine: dialer must not be nil")
	}
	if prov == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	tmpl, err := parseInstructions(cfg.Instructions)
	if err != nil {
		return nil, api.NewConfigError(fmt.Sprintf("invalid instructions template: %v", err))
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		provisioner:  p,
		dialer:       d,
		provider:     prov,
		cfg:          cfg,
		instructions: tmpl,
		log:          log,
	}, nil
}

// Run returns the event sequence of one task execution. Nothing happens
// until the sequence is iterated. The sequence is single-use: iterating
// it again yields a single Failure.
//
// Every run ends with exactly one api.Completion or api.Failure. If the
// consumer stops early, the run is cancelled and still releases its
// gateway session.
func (e *Engine) Run(ctx context.Context, task string) iter.Seq[api.Event] {
	var used atomic.Bool
	return func(yield func(api.Event) bool) {
		if used.Swap(true) {
			yield(api.Failure{Err: api.NewConfigError("run event sequence was already consumed")})
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		r := &run{
			engine: e,
			id:     api.NewRunID(),
			task:   task,
			yield:  yield,
			cancel: cancel,
			log:    e.log,
		}
		r.log = r.log.With("run_id", r.id)
		r.execute(ctx)
	}
}
