// Command mock-controlplane serves the sandbox provisioning API backed
// by the in-memory fake backend. Every sandbox it creates points at the
// configured gateway URL, typically a running gateway-stub.
//
// Configuration:
//
//	MOCK_PORT          - Listen port (default: 9091)
//	MOCK_API_KEY       - Bearer token clients must present (default: dev-key)
//	MOCK_GATEWAY_URL   - Base URL handed out for every sandbox (default: http://localhost:8081)
//	MOCK_PENDING_POLLS - Lookups a new sandbox stays pending for (default: 2)
//	MOCK_RATE_LIMIT    - Requests per second per caller, 0 for unlimited (default: 0)
//	MOCK_LOG_LEVEL     - Log level (default: INFO)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/werkstatt/pkg/logging"
	"github.com/rhuss/werkstatt/pkg/sandbox/controlplane"
	"github.com/rhuss/werkstatt/pkg/sandbox/fake"
	"github.com/rhuss/werkstatt/pkg/transport"
)

func main() {
	port := envOr("MOCK_PORT", "9091")
	apiKey := envOr("MOCK_API_KEY", "dev-key")
	gatewayURL := envOr("MOCK_GATEWAY_URL", "http://localhost:8081")
	pending, err := strconv.Atoi(envOr("MOCK_PENDING_POLLS", "2"))
	if err != nil {
		slog.Error("invalid MOCK_PENDING_POLLS", "error", err)
		os.Exit(1)
	}
	rps, err := strconv.ParseFloat(envOr("MOCK_RATE_LIMIT", "0"), 64)
	if err != nil {
		slog.Error("invalid MOCK_RATE_LIMIT", "error", err)
		os.Exit(1)
	}

	log := logging.New(logging.Settings{Level: envOr("MOCK_LOG_LEVEL", "INFO")}, os.Stderr).For(logging.Sandbox)

	srv := &http.Server{Addr: ":" + port, Handler: newHandler(gatewayURL, apiKey, pending, rps, log)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("mock control plane starting", "port", port, "gateway_url", gatewayURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("mock control plane failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("mock control plane shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newHandler(gatewayURL, apiKey string, pendingPolls int, rps float64, log *slog.Logger) http.Handler {
	backend := fake.New()
	backend.PendingPolls = pendingPolls
	backend.URLFor = func(string) string { return gatewayURL }

	var opts []controlplane.HandlerOption
	if rps > 0 {
		opts = append(opts, controlplane.WithRateLimit(rps, int(rps)+1))
	}

	mux := http.NewServeMux()
	mux.Handle("/", controlplane.Handler(backend, apiKey, log, opts...))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return transport.Chain(
		transport.Metrics("mock-controlplane"),
		transport.RequestID(),
		transport.Logging(log),
		transport.Recovery(log),
	)(mux)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
