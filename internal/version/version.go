// Package version holds build identification set via -ldflags, e.g.
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.0 \
//	  -X .../internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X .../internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)
