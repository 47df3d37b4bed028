// Package version is set at build time with
// -ldflags "-X bitprobe/core/internal/version.Version=...".
package version

var Version = "dev"
