package controlplane

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/werkstatt/pkg/auth"
	"github.com/rhuss/werkstatt/pkg/auth/apikey"
	"github.com/rhuss/werkstatt/pkg/sandbox"
)

// HandlerOption configures Handler.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	limiter auth.RateLimiter
}

// WithRateLimit answers 429 once a caller exceeds perSecond requests
// (with the given burst).
func WithRateLimit(perSecond float64, burst int) HandlerOption {
	return func(o *handlerOptions) {
		o.limiter = auth.NewSubjectLimiter(perSecond, burst)
	}
}

// Handler serves the control plane API from a sandbox.Backend. When
// apiKey is non-empty, requests must carry it as a bearer token.
func Handler(backend sandbox.Backend, apiKey string, log *slog.Logger, opts ...HandlerOption) http.Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	var o handlerOptions
	for _, opt := range opts {
		opt(&o)
	}
	h := &handler{backend: backend, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sandboxes/{name}", h.getSandbox)
	mux.HandleFunc("POST /sandboxes", h.createSandbox)
	mux.HandleFunc("GET /sandboxes/{name}/previews/{preview}", h.getPreview)
	mux.HandleFunc("POST /sandboxes/{name}/previews", h.createPreview)

	chain := &auth.Chain{DefaultDecision: auth.Yes}
	if apiKey != "" {
		chain = &auth.Chain{
			Authenticators:  []auth.Authenticator{apikey.New(apikey.Key{Key: apiKey, Identity: auth.Identity{Subject: "api-key"}})},
			DefaultDecision: auth.No,
		}
	}
	if apiKey == "" && o.limiter == nil {
		return mux
	}
	return auth.Middleware(chain, o.limiter, auth.DefaultBypassEndpoints, log)(mux)
}

type handler struct {
	backend sandbox.Backend
	log     *slog.Logger
}

func (h *handler) getSandbox(w http.ResponseWriter, r *http.Request) {
	sb, err := h.backend.GetSandbox(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromSandbox(sb))
}

func (h *handler) createSandbox(w http.ResponseWriter, r *http.Request) {
	var req sandboxResource
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	d := sandbox.Descriptor{
		Name:     req.Metadata.Name,
		Image:    req.Spec.Runtime.Image,
		MemoryMB: req.Spec.Runtime.Memory,
	}
	for _, p := range req.Spec.Runtime.Ports {
		d.Ports = append(d.Ports, sandbox.Port{Name: p.Name, Target: p.Target, Protocol: p.Protocol})
	}
	if err := d.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	sb, err := h.backend.CreateSandbox(r.Context(), d)
	if err != nil {
		h.writeBackendError(w, err)
		return
	}
	h.log.Info("sandbox created", "name", sb.Name, "image", sb.Image)
	writeJSON(w, http.StatusCreated, fromSandbox(sb))
}

func (h *handler) getPreview(w http.ResponseWriter, r *http.Request) {
	pv, err := h.backend.GetPreview(r.Context(), r.PathValue("name"), r.PathValue("preview"))
	if err != nil {
		h.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromPreview(pv))
}

func (h *handler) createPreview(w http.ResponseWriter, r *http.Request) {
	var req previewResource
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	spec := sandbox.PreviewSpec{
		Name:            req.Metadata.Name,
		Port:            req.Spec.Port,
		Public:          req.Spec.Public,
		ResponseHeaders: req.Spec.ResponseHeaders,
	}
	if err := spec.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	pv, err := h.backend.CreatePreview(r.Context(), r.PathValue("name"), spec)
	if err != nil {
		h.writeBackendError(w, err)
		return
	}
	h.log.Info("preview created", "sandbox", r.PathValue("name"), "preview", pv.Name, "url", pv.URL)
	writeJSON(w, http.StatusCreated, fromPreview(pv))
}

func (h *handler) writeBackendError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sandbox.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sandbox.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, sandbox.ErrQuotaExceeded):
		status = http.StatusPaymentRequired
	case errors.Is(err, sandbox.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, sandbox.ErrInvalid), errors.Is(err, sandbox.ErrIncompatible):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.log.Error("backend error", "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: http.StatusText(status), Message: msg})
}
