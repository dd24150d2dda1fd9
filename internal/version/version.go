// Package version carries build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/MeKo-Tech/visionbatch/internal/version.Version=v1.2.0"
package version

import "fmt"

// Build-time variables set by ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version information
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}

// UserAgent identifies this tool to remote services.
func UserAgent() string {
	return fmt.Sprintf("visionbatch/%s", Version)
}
