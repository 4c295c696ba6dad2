package ports

import (
	"context"
	"time"

	"externaltypes/internal/engine/cargo"
	"externaltypes/internal/ui/report"
)

// AuditOptions describes one audit of a crate's public API.
type AuditOptions struct {
	// ManifestPath selects the crate; empty means the Cargo.toml found from
	// the working directory.
	ManifestPath string
	// ConfigPath is an explicit allow-list file. It takes precedence over
	// the manifest metadata table.
	ConfigPath string
	// DocJSON audits an already built rustdoc JSON file instead of running
	// the toolchain.
	DocJSON  string
	Features cargo.FeatureOptions
	Target   string
	Format   report.Format

	Watch         bool
	WatchDebounce time.Duration

	// MetricsFile receives the audit metrics in textfile format.
	MetricsFile string
}

// AuditOutcome summarizes the findings of a finished audit.
type AuditOutcome struct {
	Errors   int
	Warnings int
	Format   report.Format
}

// Failed reports whether the audit should exit unsuccessfully. Only the
// errors format fails on findings; the table and SARIF formats are
// informational.
func (o AuditOutcome) Failed() bool {
	return o.Errors > 0 && o.Format == report.FormatErrors
}

// AuditService is the driving port used by the CLI.
type AuditService interface {
	Run(ctx context.Context, opts AuditOptions) (AuditOutcome, error)
}

// DocRequest asks for the rustdoc JSON of one crate.
type DocRequest struct {
	ManifestPath string
	Features     cargo.FeatureOptions
	Target       string
}

// DocOutput locates a built rustdoc JSON file.
type DocOutput struct {
	JSONPath      string
	WorkspaceRoot string
	// CrateDir is the directory of the root package's manifest.
	CrateDir string
}

// DocBuilder abstracts the toolchain that produces rustdoc JSON.
type DocBuilder interface {
	Build(ctx context.Context, req DocRequest) (DocOutput, error)
}
