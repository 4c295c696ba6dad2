package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"externaltypes/internal/core/errors"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config lists which external types may appear in a crate's public API.
//
// For example, to allow every type in a crate:
//
//	allowed_external_types = ["crate_name::*"]
//
// or just one module of it:
//
//	allowed_external_types = ["crate_name::path::to_module::*"]
type Config struct {
	// AllowAlloc allows types from `alloc`. Defaults to true.
	AllowAlloc bool `toml:"allow_alloc" yaml:"allow_alloc" json:"allow_alloc"`
	// AllowCore allows types from `core`. Defaults to true.
	AllowCore bool `toml:"allow_core" yaml:"allow_core" json:"allow_core"`
	// AllowStd allows types from `std`. Defaults to true.
	AllowStd bool `toml:"allow_std" yaml:"allow_std" json:"allow_std"`
	// AllowedExternalTypes are glob patterns over fully qualified type names.
	AllowedExternalTypes []string `toml:"allowed_external_types" yaml:"allowed_external_types" json:"allowed_external_types"`
}

func Default() Config {
	return Config{
		AllowAlloc: true,
		AllowCore:  true,
		AllowStd:   true,
	}
}

type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatForPath picks the decoder from the file extension; anything that is
// not YAML or JSON is read as TOML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatTOML
	}
}

// Load reads an explicit config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data, FormatForPath(path))
	if err != nil {
		return Config{}, errors.AddContext(err, errors.CtxPath, path)
	}
	return cfg, nil
}

// Parse decodes a config document. Keys left out keep their defaults and
// unknown keys are rejected.
func Parse(data []byte, format Format) (Config, error) {
	cfg := Default()
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && err != io.EOF {
			return Config{}, errors.Wrap(err, errors.CodeValidationError, "failed to parse config file")
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, errors.Wrap(err, errors.CodeValidationError, "failed to parse config file")
		}
	default:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, errors.Wrap(err, errors.CodeValidationError, "failed to parse config file")
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, errors.Newf(errors.CodeValidationError, "unknown config keys: %v", undecoded)
		}
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	for i, pattern := range cfg.AllowedExternalTypes {
		if strings.TrimSpace(pattern) == "" {
			return errors.Newf(errors.CodeValidationError, "allowed_external_types[%d] is empty", i)
		}
	}
	return nil
}
