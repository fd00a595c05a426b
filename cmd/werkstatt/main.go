// Command werkstatt provisions a sandbox, connects to its tool gateway
// and lets a model build the requested project inside it.
//
//	werkstatt [--config werkstatt.yaml] [task...]
//
// Credentials come from the config file or the environment
// (BL_API_KEY, BL_WORKSPACE, OPENAI_API_KEY or their WERKSTATT_ names).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/config"
	"github.com/rhuss/werkstatt/pkg/console"
	"github.com/rhuss/werkstatt/pkg/engine"
	"github.com/rhuss/werkstatt/pkg/logging"
	"github.com/rhuss/werkstatt/pkg/observability"
	"github.com/rhuss/werkstatt/pkg/sandbox"
)

// DefaultTask is used when no task is given on the command line.
const DefaultTask = `Create a Next.js app that displays "Hello, World!" on the homepage styled with Tailwind CSS.`

// Exit codes.
const (
	exitOK        = 0
	exitFailed    = 1
	exitConfigErr = 2
)

type flags struct {
	configPath string
	noColor    bool
	showArgs   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var runErr *runFailedError
	if errors.As(err, &runErr) {
		// Already rendered by the console.
		return exitFailed
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	if api.KindOf(err) == api.ErrorKindConfig {
		return exitConfigErr
	}
	return exitFailed
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "werkstatt [task...]",
		Short:         "Build a project inside a remote sandbox with a tool-calling model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.TrimSpace(strings.Join(args, " "))
			if task == "" {
				task = DefaultTask
			}
			return run(cmd.Context(), f, task, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to the config file")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "disable colored output")
	cmd.Flags().BoolVar(&f.showArgs, "show-args", false, "print tool call arguments")
	return cmd
}

// runFailedError reports a run that ended in a Failure event.
type runFailedError struct {
	err error
}

func (e *runFailedError) Error() string { return e.err.Error() }
func (e *runFailedError) Unwrap() error { return e.err }

func run(ctx context.Context, f flags, task string, stdout, stderr io.Writer) (err error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return api.NewConfigError(err.Error())
	}

	logs := logging.New(cfg.Logging, stderr)
	log := logs.For(logging.Config)
	log.Debug("configuration loaded",
		"sandbox_backend", cfg.Sandbox.Backend,
		"model_provider", cfg.Model.Provider,
		"model", cfg.Model.Model,
	)

	// Nothing below may touch the network before credentials are known
	// to be present.
	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}

	if path := cfg.Observability.Metrics.Textfile; path != "" {
		defer func() {
			if werr := observability.WriteTextfile(path); werr != nil {
				log.Warn("writing metrics textfile failed", "path", path, "error", werr)
			}
		}()
	}

	backend, err := newBackend(cfg, logs)
	if err != nil {
		return err
	}
	prov, err := newProvider(cfg, logs)
	if err != nil {
		return err
	}
	defer prov.Close()

	provisioner := sandbox.New(backend, sandbox.Options{
		ReadyTimeout: cfg.Sandbox.ReadyTimeout,
		Attempts:     cfg.Sandbox.RetryAttempts,
		Logger:       logs.For(logging.Sandbox),
	})

	eng, err := engine.New(provisioner, newDialer(cfg, logs), prov, engineConfig(cfg, logs))
	if err != nil {
		return err
	}

	consumer := console.New(stdout, console.Options{
		Color:         !f.noColor && !color.NoColor,
		ShowArguments: f.showArgs,
		SandboxName:   cfg.Sandbox.Name,
		Logger:        logs.For(logging.Console),
	})
	outcome := consumer.Consume(eng.Run(ctx, task))
	if !outcome.Completed {
		return &runFailedError{err: outcome.Err}
	}
	return nil
}
