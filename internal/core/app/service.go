// Package app runs audits: it resolves the allow-list, obtains the crate's
// rustdoc JSON, visits the public API and renders the findings.
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"externaltypes/internal/core/config"
	"externaltypes/internal/core/errors"
	"externaltypes/internal/core/ports"
	"externaltypes/internal/engine/findings"
	"externaltypes/internal/engine/rustdoc"
	"externaltypes/internal/engine/visitor"
	"externaltypes/internal/shared/observability"
	"externaltypes/internal/shared/util"
	"externaltypes/internal/ui/report"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	Options = ports.AuditOptions
	Outcome = ports.AuditOutcome
)

type Service struct {
	logger      *slog.Logger
	stdout      io.Writer
	stderr      io.Writer
	builder     ports.DocBuilder
	printerOpts []report.PrinterOption
}

var _ ports.AuditService = (*Service)(nil)

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOutput sets where reports and progress messages go.
func WithOutput(stdout, stderr io.Writer) ServiceOption {
	return func(s *Service) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

func WithDocBuilder(b ports.DocBuilder) ServiceOption {
	return func(s *Service) {
		s.builder = b
	}
}

func WithPrinterOptions(opts ...report.PrinterOption) ServiceOption {
	return func(s *Service) {
		s.printerOpts = append(s.printerOpts, opts...)
	}
}

func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		logger:  slog.Default(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		builder: CargoDocBuilder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run audits the crate once, or keeps auditing on changes when
// opts.Watch is set until ctx is cancelled.
func (s *Service) Run(ctx context.Context, opts Options) (Outcome, error) {
	if opts.Format == "" {
		opts.Format = report.FormatErrors
	}
	if _, err := report.ParseFormat(string(opts.Format)); err != nil {
		return Outcome{}, errors.Wrap(err, errors.CodeValidationError, "invalid options")
	}
	if err := opts.Features.Validate(); err != nil {
		return Outcome{}, err
	}
	if opts.ManifestPath == "" {
		opts.ManifestPath = config.FindManifest(".")
	}
	if opts.Watch {
		return s.watch(ctx, opts)
	}
	return s.audit(ctx, opts)
}

func (s *Service) audit(ctx context.Context, opts Options) (Outcome, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.Service.audit",
		trace.WithAttributes(
			attribute.String("manifest_path", opts.ManifestPath),
			attribute.String("format", string(opts.Format)),
		))
	defer span.End()

	metrics := observability.NewAuditMetrics()
	var (
		cfg   config.Config
		doc   ports.DocOutput
		crate *rustdoc.Crate
		set   *findings.Set
	)

	err := s.phase(ctx, metrics, "config", func(context.Context) error {
		var (
			source config.Source
			err    error
		)
		cfg, source, err = config.Resolve(opts.ConfigPath, opts.ManifestPath)
		if err != nil {
			return err
		}
		s.logger.Debug("resolved allow-list config", "source", source, "patterns", len(cfg.AllowedExternalTypes))
		return nil
	})
	if err == nil {
		err = s.phase(ctx, metrics, "rustdoc", func(ctx context.Context) error {
			var err error
			doc, err = s.locateDocs(ctx, opts)
			return err
		})
	}
	if err == nil {
		err = s.phase(ctx, metrics, "load", func(context.Context) error {
			var err error
			crate, err = rustdoc.Load(doc.JSONPath)
			return err
		})
	}
	if err == nil {
		err = s.phase(ctx, metrics, "visit", func(context.Context) error {
			fmt.Fprintln(s.stderr, "Examining all public types...")
			v, err := visitor.New(cfg, crate,
				visitor.WithLogger(s.logger),
				visitor.WithMetrics(metrics),
				visitor.WithFaults(errors.NewFaults(s.logger)),
			)
			if err != nil {
				return err
			}
			set, err = v.VisitAll()
			return err
		})
	}
	if err == nil {
		err = s.phase(ctx, metrics, "render", func(context.Context) error {
			return report.Render(s.stdout, opts.Format, doc.WorkspaceRoot, set, s.printerOpts...)
		})
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, err
	}

	if opts.MetricsFile != "" {
		if err := util.EnsureParentDir(opts.MetricsFile); err != nil {
			return Outcome{}, fmt.Errorf("create metrics directory: %w", err)
		}
		if err := metrics.WriteTextfile(opts.MetricsFile); err != nil {
			return Outcome{}, err
		}
	}

	outcome := Outcome{Errors: set.ErrorCount(), Warnings: set.WarningCount(), Format: opts.Format}
	s.logFindings(set)
	span.SetAttributes(
		attribute.Int("errors", outcome.Errors),
		attribute.Int("warnings", outcome.Warnings),
	)
	return outcome, nil
}

// locateDocs returns the prebuilt JSON when one was given and builds it with
// the toolchain otherwise.
func (s *Service) locateDocs(ctx context.Context, opts Options) (ports.DocOutput, error) {
	if opts.DocJSON != "" {
		root, err := workspaceRootFor(opts.ManifestPath)
		if err != nil {
			return ports.DocOutput{}, err
		}
		return ports.DocOutput{JSONPath: opts.DocJSON, WorkspaceRoot: root, CrateDir: root}, nil
	}
	fmt.Fprintln(s.stderr, "Running rustdoc to produce json doc output...")
	return s.builder.Build(ctx, ports.DocRequest{
		ManifestPath: opts.ManifestPath,
		Features:     opts.Features,
		Target:       opts.Target,
	})
}

func workspaceRootFor(manifestPath string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	if manifestPath == "" {
		return wd, nil
	}
	return config.ResolveRelative(wd, filepath.Dir(manifestPath)), nil
}

func (s *Service) phase(ctx context.Context, metrics *observability.AuditMetrics, name string, fn func(context.Context) error) error {
	ctx, span := observability.Tracer.Start(ctx, "phase."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.ObservePhase(name, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var de *errors.DomainError
		if stderrors.As(err, &de) {
			de.WithContext(errors.CtxOperation, name)
		}
		return err
	}
	return nil
}

func (s *Service) logFindings(set *findings.Set) {
	byKind := make(map[string]int)
	for kind, n := range set.CountByKind() {
		byKind[kind.String()] = n
	}
	for _, kind := range util.SortedStringKeys(byKind) {
		s.logger.Debug("findings", "kind", kind, "count", byKind[kind])
	}
	s.logger.Info("audit finished", "errors", set.ErrorCount(), "warnings", set.WarningCount())
}
