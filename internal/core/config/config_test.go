// # internal/core/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"externaltypes/internal/core/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	content := `
allow_std = false
allowed_external_types = [
    "test::*",
    "another_test::something::*::something",
]
`
	path := writeFile(t, t.TempDir(), "external-types.toml", content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.AllowAlloc || !cfg.AllowCore {
		t.Errorf("expected alloc and core to default to true, got %+v", cfg)
	}
	if cfg.AllowStd {
		t.Error("expected allow_std = false")
	}
	want := []string{"test::*", "another_test::something::*::something"}
	if strings.Join(cfg.AllowedExternalTypes, ",") != strings.Join(want, ",") {
		t.Errorf("allowed_external_types = %v, want %v", cfg.AllowedExternalTypes, want)
	}
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.toml", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.AllowAlloc || !cfg.AllowCore || !cfg.AllowStd {
		t.Errorf("expected all base libraries allowed, got %+v", cfg)
	}
	if len(cfg.AllowedExternalTypes) != 0 {
		t.Errorf("expected no allowed types, got %v", cfg.AllowedExternalTypes)
	}
}

func TestLoadYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "cfg.yaml", "allow_core: false\nallowed_external_types:\n  - \"external_lib::*\"\n")
	jsonPath := writeFile(t, dir, "cfg.json", `{"allow_alloc": false, "allowed_external_types": ["a::*"]}`)

	cfg, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if cfg.AllowCore || !cfg.AllowStd || len(cfg.AllowedExternalTypes) != 1 {
		t.Errorf("unexpected yaml config %+v", cfg)
	}

	cfg, err = Load(jsonPath)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if cfg.AllowAlloc || cfg.AllowedExternalTypes[0] != "a::*" {
		t.Errorf("unexpected json config %+v", cfg)
	}
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown key", "a.toml", "allow_everything = true\n"},
		{"not a list of strings", "b.toml", "allowed_external_types = [1, 2]\n"},
		{"empty pattern", "c.toml", "allowed_external_types = [\"\"]\n"},
		{"yaml unknown key", "d.yaml", "allow_all: true\n"},
		{"broken toml", "e.toml", "allowed_external_types = [\n"},
	}
	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsCode(err, errors.CodeValidationError) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFromManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "Cargo.toml", `
[package]
name = "test-crate"
version = "0.1.0"

[package.metadata.cargo_check_external_types]
allow_std = false
allowed_external_types = ["external_lib::*"]

[package.metadata.docs.rs]
all-features = true
`)

	cfg, found, err := FromManifest(manifest)
	if err != nil {
		t.Fatalf("FromManifest failed: %v", err)
	}
	if !found {
		t.Fatal("expected metadata table to be found")
	}
	if cfg.AllowStd || !cfg.AllowCore {
		t.Errorf("unexpected config %+v", cfg)
	}
	if len(cfg.AllowedExternalTypes) != 1 || cfg.AllowedExternalTypes[0] != "external_lib::*" {
		t.Errorf("unexpected allowed types %v", cfg.AllowedExternalTypes)
	}
}

func TestFromManifestWithoutMetadata(t *testing.T) {
	manifest := writeFile(t, t.TempDir(), "Cargo.toml", "[package]\nname = \"plain\"\n")
	_, found, err := FromManifest(manifest)
	if err != nil {
		t.Fatalf("FromManifest failed: %v", err)
	}
	if found {
		t.Error("expected no metadata table")
	}
}

func TestFromManifestInvalidMetadata(t *testing.T) {
	manifest := writeFile(t, t.TempDir(), "Cargo.toml", `
[package]
name = "broken"

[package.metadata.cargo_check_external_types]
allowed_external_types = "not-a-list"
`)
	_, found, err := FromManifest(manifest)
	if err == nil {
		t.Fatal("expected error for invalid metadata")
	}
	if !found {
		t.Error("expected the table to be reported as present")
	}
}

func TestResolvePrecedence(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "Cargo.toml", `
[package]
name = "crate"

[package.metadata.cargo_check_external_types]
allowed_external_types = ["from_manifest::*"]
`)
	explicit := writeFile(t, dir, "explicit.toml", `allowed_external_types = ["from_file::*"]`)

	cfg, source, err := Resolve(explicit, manifest)
	if err != nil {
		t.Fatal(err)
	}
	if source != SourceFile || cfg.AllowedExternalTypes[0] != "from_file::*" {
		t.Errorf("explicit file should win, got %s %v", source, cfg.AllowedExternalTypes)
	}

	cfg, source, err = Resolve("", manifest)
	if err != nil {
		t.Fatal(err)
	}
	if source != SourceManifest || cfg.AllowedExternalTypes[0] != "from_manifest::*" {
		t.Errorf("manifest should be used, got %s %v", source, cfg.AllowedExternalTypes)
	}

	plain := writeFile(t, filepath.Join(dir, "plain"), "Cargo.toml", "[package]\nname = \"plain\"\n")
	cfg, source, err = Resolve("", plain)
	if err != nil {
		t.Fatal(err)
	}
	if source != SourceDefault || len(cfg.AllowedExternalTypes) != 0 {
		t.Errorf("expected defaults, got %s %+v", source, cfg)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CHECK_EXTERNAL_TYPES_ALLOW_STD", "false")
	t.Setenv("CHECK_EXTERNAL_TYPES_ALLOW_CORE", "not-a-bool")

	cfg := Default()
	ApplyEnvOverrides(&cfg)
	if cfg.AllowStd {
		t.Error("expected allow_std override to apply")
	}
	if !cfg.AllowCore {
		t.Error("invalid override must be ignored")
	}
}

func TestFindManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "Cargo.toml", "[package]\nname = \"x\"\n")
	nested := filepath.Join(dir, "src", "nested")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	if got := FindManifest(nested); got != manifest {
		t.Errorf("FindManifest(nested) = %q, want %q", got, manifest)
	}
	if got := FindManifest(manifest); got != manifest {
		t.Errorf("FindManifest(manifest) = %q, want %q", got, manifest)
	}
}

func TestResolveRelative(t *testing.T) {
	tests := []struct {
		base, value, want string
	}{
		{"/work", "crate", "/work/crate"},
		{"/work", "  ", "/work"},
		{"/work", "/abs/crate/", "/abs/crate"},
		{"/work/", "../other", "/other"},
	}
	for _, tt := range tests {
		if got := ResolveRelative(tt.base, tt.value); got != tt.want {
			t.Errorf("ResolveRelative(%q, %q) = %q, want %q", tt.base, tt.value, got, tt.want)
		}
	}
}
