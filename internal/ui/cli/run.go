package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreapp "externaltypes/internal/core/app"
	"externaltypes/internal/core/ports"
	"externaltypes/internal/shared/observability"
	"externaltypes/internal/ui/report"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	exitOK       = 0
	exitFindings = 1
	exitFailure  = 2
)

// errFindings marks a completed audit that reported errors.
var errFindings = errors.New("audit reported errors")

type serviceFactory func(logger *slog.Logger, stdout, stderr io.Writer, color bool) ports.AuditService

func newCoreService(logger *slog.Logger, stdout, stderr io.Writer, color bool) ports.AuditService {
	return coreapp.NewService(
		coreapp.WithLogger(logger),
		coreapp.WithOutput(stdout, stderr),
		coreapp.WithPrinterOptions(report.WithColor(color)),
	)
}

// Run executes the CLI and returns the process exit code: 0 on success, 1
// when the audit found errors and 2 on any failure.
func Run(args []string) int {
	return run(args, os.Stdout, os.Stderr, newCoreService)
}

func run(args []string, stdout, stderr io.Writer, factory serviceFactory) int {
	opts := defaultOptions()
	cmd := newRootCommand(&opts, func(cmd *cobra.Command, opts cliOptions) error {
		return execute(cmd.Context(), opts, stdout, stderr, factory)
	})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errFindings):
		return exitFindings
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
}

func execute(ctx context.Context, opts cliOptions, stdout, stderr io.Writer, factory serviceFactory) error {
	auditOpts, err := opts.auditOptions()
	if err != nil {
		return err
	}
	logger := configureLogging(stderr, opts.verbose)

	shutdown, err := observability.SetupTracing(ctx, opts.otlpEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	svc := factory(logger, stdout, stderr, useColor(opts.color, stdout))
	outcome, err := svc.Run(ctx, auditOpts)
	if err != nil {
		return err
	}
	if outcome.Failed() {
		return errFindings
	}
	return nil
}

func configureLogging(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}

func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "on":
		return true
	case "off":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
