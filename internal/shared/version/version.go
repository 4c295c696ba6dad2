// Package version holds the build version of check-external-types.
package version

// Version is overridden at link time with
// -ldflags "-X externaltypes/internal/shared/version.Version=v1.2.3".
var Version = "0.1.0-dev"
