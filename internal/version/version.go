// Package version carries build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/VioletBL/fingerprint-sensor/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for -version output and startup logs.
func String() string {
	return fmt.Sprintf("fpenroll %s (%s, built %s)", Version, GitSHA, BuildTime)
}
