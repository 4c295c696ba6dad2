package config

import (
	"os"
	"path/filepath"
	"strings"
)

const ManifestName = "Cargo.toml"

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// FindManifest walks up from start until it finds a Cargo.toml, the same
// way cargo locates the manifest for the current directory. It returns ""
// when there is none.
func FindManifest(start string) string {
	abs, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	dir := abs
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		if filepath.Base(abs) == ManifestName {
			return abs
		}
		dir = filepath.Dir(abs)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
