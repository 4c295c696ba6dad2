package config

import (
	"fmt"
	"os"

	"externaltypes/internal/core/errors"

	"github.com/BurntSushi/toml"
)

// MetadataKey is the table under `[package.metadata]` in Cargo.toml that
// may hold the config instead of a separate file.
const MetadataKey = "cargo_check_external_types"

// Source records where a resolved Config came from.
type Source string

const (
	SourceFile     Source = "file"
	SourceManifest Source = "manifest"
	SourceDefault  Source = "default"
)

// Resolve picks the config for a run: an explicit file wins over the
// manifest metadata, which wins over the defaults. Environment overrides are
// applied last.
func Resolve(explicitPath, manifestPath string) (Config, Source, error) {
	var (
		cfg    Config
		source Source
		err    error
	)
	switch {
	case explicitPath != "":
		cfg, err = Load(explicitPath)
		source = SourceFile
	case manifestPath != "":
		var found bool
		cfg, found, err = FromManifest(manifestPath)
		source = SourceManifest
		if err == nil && !found {
			cfg, source = Default(), SourceDefault
		}
	default:
		cfg, source = Default(), SourceDefault
	}
	if err != nil {
		return Config{}, "", err
	}
	ApplyEnvOverrides(&cfg)
	return cfg, source, nil
}

// FromManifest reads `[package.metadata.cargo_check_external_types]` from a
// Cargo.toml. found is false when the table is absent; a present but invalid
// table is an error.
func FromManifest(manifestPath string) (cfg Config, found bool, err error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return Config{}, false, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest struct {
		Package struct {
			Metadata map[string]toml.Primitive `toml:"metadata"`
		} `toml:"package"`
	}
	md, err := toml.Decode(string(data), &manifest)
	if err != nil {
		return Config{}, false, errors.AddContext(
			errors.Wrap(err, errors.CodeValidationError, "failed to parse manifest"),
			errors.CtxPath, manifestPath)
	}

	prim, ok := manifest.Package.Metadata[MetadataKey]
	if !ok {
		return Config{}, false, nil
	}

	cfg = Default()
	if err := md.PrimitiveDecode(prim, &cfg); err != nil {
		return Config{}, true, errors.AddContext(
			errors.Wrap(err, errors.CodeValidationError, "failed to parse config from Cargo.toml metadata"),
			errors.CtxPath, manifestPath)
	}
	if err := validate(cfg); err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}
