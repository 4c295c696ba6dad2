package cargo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"externaltypes/internal/core/errors"
)

// Rustdoc builds the JSON documentation of one library crate with the
// nightly toolchain.
type Rustdoc struct {
	LibName   string
	CrateDir  string
	TargetDir string
	// Features is the resolved feature set; when non-empty default features
	// are disabled and exactly these are enabled.
	Features []string
	// Target is an optional target triple.
	Target string
	Runner Runner
}

// NewRustdoc prepares a build for the root package described by md.
func NewRustdoc(md *Metadata, crateDir, target string) (*Rustdoc, error) {
	libName, err := md.LibName()
	if err != nil {
		return nil, err
	}
	features, err := md.Features()
	if err != nil {
		return nil, err
	}
	return &Rustdoc{
		LibName:   libName,
		CrateDir:  crateDir,
		TargetDir: md.TargetDirectory,
		Features:  features,
		Target:    target,
	}, nil
}

// Args returns the cargo arguments for the build.
func (r *Rustdoc) Args() []string {
	args := []string{"+nightly", "rustdoc", "--lib"}
	if len(r.Features) > 0 {
		args = append(args, "--no-default-features", "--features", strings.Join(r.Features, ","))
	}
	if r.Target != "" {
		args = append(args, "--target", r.Target)
	}
	return append(args, "--", "--document-private-items", "-Z", "unstable-options", "--output-format", "json")
}

// OutputPath is where rustdoc writes the JSON for the crate.
func (r *Rustdoc) OutputPath() string {
	dir := r.TargetDir
	if r.Target != "" {
		dir = filepath.Join(dir, r.Target)
	}
	return filepath.Join(dir, "doc", strings.ReplaceAll(r.LibName, "-", "_")+".json")
}

// Run builds the docs and returns the path of the JSON output.
func (r *Rustdoc) Run(ctx context.Context) (string, error) {
	runner := r.Runner
	if runner == nil {
		runner = ExecRunner
	}
	if _, err := runner(ctx, r.CrateDir, "cargo", r.Args()...); err != nil {
		return "", fmt.Errorf("failed to run rustdoc for %s: %w", r.LibName, err)
	}
	out := r.OutputPath()
	if _, err := os.Stat(out); err != nil {
		return "", errors.AddContext(
			errors.Wrap(err, errors.CodeToolchain, "rustdoc did not produce the expected JSON output"),
			errors.CtxPath, out)
	}
	return out, nil
}
