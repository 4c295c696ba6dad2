package app

import (
	"context"
	"path/filepath"

	"externaltypes/internal/core/ports"
	"externaltypes/internal/engine/cargo"
)

// CargoDocBuilder builds rustdoc JSON with the cargo toolchain. A nil Runner
// executes real commands.
type CargoDocBuilder struct {
	Runner cargo.Runner
}

var _ ports.DocBuilder = CargoDocBuilder{}

func (b CargoDocBuilder) Build(ctx context.Context, req ports.DocRequest) (ports.DocOutput, error) {
	md, err := cargo.LoadMetadata(ctx, cargo.MetadataOptions{
		FeatureOptions: req.Features,
		ManifestPath:   req.ManifestPath,
		Runner:         b.Runner,
	})
	if err != nil {
		return ports.DocOutput{}, err
	}
	pkg, err := md.RootPackage()
	if err != nil {
		return ports.DocOutput{}, err
	}
	crateDir := filepath.Dir(pkg.ManifestPath)

	rd, err := cargo.NewRustdoc(md, crateDir, req.Target)
	if err != nil {
		return ports.DocOutput{}, err
	}
	rd.Runner = b.Runner
	out, err := rd.Run(ctx)
	if err != nil {
		return ports.DocOutput{}, err
	}
	return ports.DocOutput{JSONPath: out, WorkspaceRoot: md.WorkspaceRoot, CrateDir: crateDir}, nil
}
