// Command gateway-stub serves a local MCP tool gateway over streamable
// HTTP. Its tools work on a directory of the local filesystem, which
// stands in for the sandbox project directory during development.
//
//	gateway-stub --root ./app --port 8081 --token dev-token
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rhuss/werkstatt/pkg/auth"
	"github.com/rhuss/werkstatt/pkg/auth/apikey"
	"github.com/rhuss/werkstatt/pkg/logging"
	"github.com/rhuss/werkstatt/pkg/transport"
)

func main() {
	var (
		port     string
		rootDir  string
		token    string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:          "gateway-stub",
		Short:        "Serve a local MCP tool gateway on a directory",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New(logging.Settings{Level: logLevel}, os.Stderr).For(logging.Gateway)
			ws, err := openWorkspace(rootDir)
			if err != nil {
				return err
			}
			defer ws.Close()
			return serve(cmd.Context(), ":"+port, newHandler(ws, token, log), log)
		},
	}
	cmd.Flags().StringVar(&port, "port", envOr("PORT", "8081"), "listen port")
	cmd.Flags().StringVar(&rootDir, "root", ".", "directory the tools operate on")
	cmd.Flags().StringVar(&token, "token", os.Getenv("GATEWAY_TOKEN"), "bearer token clients must present (empty disables the check)")
	cmd.Flags().StringVar(&logLevel, "log-level", "INFO", "log level")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newHandler builds the HTTP surface: the MCP endpoint, health and
// metrics.
func newHandler(ws *workspace, token string, log *slog.Logger) http.Handler {
	server := mcp.NewServer(&mcp.Implementation{Name: "werkstatt-gateway-stub", Version: "v1.0.0"}, nil)
	ws.register(server)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", requireToken(token, mcpHandler))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	log.Debug("gateway handler ready", "root", ws.dir, "auth", token != "")
	return transport.Chain(
		transport.Metrics("gateway-stub"),
		transport.RequestID(),
		transport.Logging(log),
		transport.Recovery(log),
	)(mux)
}

func requireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	chain := &auth.Chain{
		Authenticators:  []auth.Authenticator{apikey.New(apikey.Key{Key: token, Identity: auth.Identity{Subject: "gateway"}})},
		DefaultDecision: auth.No,
	}
	return auth.Middleware(chain, nil, nil, nil)(next)
}

func serve(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway stub starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("gateway stub shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
