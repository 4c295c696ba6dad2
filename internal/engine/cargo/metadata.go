// Package cargo talks to the cargo toolchain: it reads `cargo metadata` and
// builds the rustdoc JSON the audit runs on.
package cargo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"externaltypes/internal/core/errors"
)

// Metadata is the subset of `cargo metadata --format-version 1` output the
// audit needs.
type Metadata struct {
	Packages         []Package `json:"packages"`
	WorkspaceMembers []string  `json:"workspace_members"`
	Resolve          *Resolve  `json:"resolve"`
	TargetDirectory  string    `json:"target_directory"`
	WorkspaceRoot    string    `json:"workspace_root"`
	Version          int       `json:"version"`
}

type Package struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	ID           string   `json:"id"`
	ManifestPath string   `json:"manifest_path"`
	Targets      []Target `json:"targets"`
}

type Target struct {
	Name    string   `json:"name"`
	Kind    []string `json:"kind"`
	SrcPath string   `json:"src_path"`
}

// IsLib reports whether the target is a `lib` target.
func (t Target) IsLib() bool {
	for _, k := range t.Kind {
		if k == "lib" {
			return true
		}
	}
	return false
}

type Resolve struct {
	Nodes []Node  `json:"nodes"`
	Root  *string `json:"root"`
}

type Node struct {
	ID       string   `json:"id"`
	Features []string `json:"features"`
}

// FeatureOptions mirrors cargo's feature selection flags.
type FeatureOptions struct {
	AllFeatures       bool
	NoDefaultFeatures bool
	Features          []string
}

// Validate rejects flag combinations cargo would refuse.
func (o FeatureOptions) Validate() error {
	if o.AllFeatures && o.NoDefaultFeatures {
		return errors.New(errors.CodeValidationError, "--all-features and --no-default-features cannot be used together")
	}
	return nil
}

func (o FeatureOptions) args() []string {
	var args []string
	if o.AllFeatures {
		args = append(args, "--all-features")
	}
	if o.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	if len(o.Features) > 0 {
		args = append(args, "--features", strings.Join(o.Features, ","))
	}
	return args
}

type MetadataOptions struct {
	FeatureOptions
	// ManifestPath selects the crate; empty means the current directory.
	ManifestPath string
	Runner       Runner
}

// Runner executes a command in dir and returns its standard output.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec and reports stderr on failure.
func ExecRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrap(fmt.Errorf("%w\n%s", err, strings.TrimSpace(stderr.String())),
			errors.CodeToolchain, fmt.Sprintf("%s %s failed", name, strings.Join(args, " ")))
	}
	return stdout.Bytes(), nil
}

// LoadMetadata runs `cargo metadata` and decodes its output.
func LoadMetadata(ctx context.Context, opts MetadataOptions) (*Metadata, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner
	}
	args := []string{"metadata", "--format-version", "1"}
	if opts.ManifestPath != "" {
		args = append(args, "--manifest-path", opts.ManifestPath)
	}
	args = append(args, opts.args()...)

	out, err := runner(ctx, "", "cargo", args...)
	if err != nil {
		return nil, err
	}
	return ParseMetadata(out)
}

func ParseMetadata(data []byte) (*Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, errors.Wrap(err, errors.CodeToolchain, "failed to decode cargo metadata")
	}
	return &md, nil
}

// RootPackage returns the package the command was run for. It fails on a
// virtual workspace manifest and lists the members to run on instead.
func (m *Metadata) RootPackage() (*Package, error) {
	if pkg := m.rootPackage(); pkg != nil {
		return pkg, nil
	}
	if len(m.WorkspaceMembers) > 0 {
		return nil, errors.Newf(errors.CodeValidationError,
			"it appears you're trying to run `cargo-check-external-types` on a workspace Cargo.toml; "+
				"Instead, run it on one of the workspace member Cargo.tomls directly:\n%s",
			strings.Join(m.WorkspaceMembers, "\n"))
	}
	return nil, errors.New(errors.CodeNotFound, "No root package found")
}

func (m *Metadata) rootPackage() *Package {
	if m.Resolve != nil {
		if m.Resolve.Root == nil {
			return nil
		}
		return m.packageByID(*m.Resolve.Root)
	}
	manifest := filepath.Join(m.WorkspaceRoot, "Cargo.toml")
	for i := range m.Packages {
		if filepath.Clean(m.Packages[i].ManifestPath) == manifest {
			return &m.Packages[i]
		}
	}
	return nil
}

func (m *Metadata) packageByID(id string) *Package {
	for i := range m.Packages {
		if m.Packages[i].ID == id {
			return &m.Packages[i]
		}
	}
	return nil
}

// LibName is the name of the root package's only lib target.
func (m *Metadata) LibName() (string, error) {
	pkg, err := m.RootPackage()
	if err != nil {
		return "", err
	}
	var libs []Target
	for _, t := range pkg.Targets {
		if t.IsLib() {
			libs = append(libs, t)
		}
	}
	if len(libs) != 1 {
		return "", errors.Newf(errors.CodeValidationError, "Expected crate to define 1 lib target, found %d", len(libs))
	}
	return libs[0].Name, nil
}

// Features returns the features cargo resolved for the root package.
func (m *Metadata) Features() ([]string, error) {
	pkg, err := m.RootPackage()
	if err != nil {
		return nil, err
	}
	if m.Resolve == nil {
		return nil, errors.New(errors.CodeToolchain, "Cargo metadata didn't have resolved nodes")
	}
	for _, node := range m.Resolve.Nodes {
		if node.ID == pkg.ID {
			return node.Features, nil
		}
	}
	return nil, errors.New(errors.CodeNotFound, "Failed to find node for root package")
}
