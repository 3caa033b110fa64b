// Package version exposes build metadata stamped in via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/candle-data/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/candle-data/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/candle-data/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Unstamped builds report "dev".
package version

var (
	// Version is the semantic version of this build.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp in ISO 8601.
	BuildTime = "unknown"
)

// String formats the three fields as a single version line.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
