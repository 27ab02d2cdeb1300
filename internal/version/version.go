// Package version provides the caskdb version string, set at build time
// via -ldflags.
package version

// Version is the current caskdb release.
// Override at build time: go build -ldflags "-X github.com/caskdb/caskdb/internal/version.Version=1.1.0"
var Version = "1.0.0"

// BuildTime is the build timestamp.
// Override at build time: go build -ldflags "-X github.com/caskdb/caskdb/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var BuildTime = "unknown"
