package config

import (
	"log/slog"
	"os"
	"strconv"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: CHECK_EXTERNAL_TYPES_[KEY] (e.g., CHECK_EXTERNAL_TYPES_ALLOW_STD).
func ApplyEnvOverrides(cfg *Config) {
	setEnvBool(&cfg.AllowAlloc, "CHECK_EXTERNAL_TYPES_ALLOW_ALLOC")
	setEnvBool(&cfg.AllowCore, "CHECK_EXTERNAL_TYPES_ALLOW_CORE")
	setEnvBool(&cfg.AllowStd, "CHECK_EXTERNAL_TYPES_ALLOW_STD")
}

func setEnvBool(target *bool, key string) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		slog.Warn("ignoring invalid env override", "key", key, "value", val)
		return
	}
	slog.Debug("applying env override", "key", key, "value", b)
	*target = b
}
