package version

import (
	"fmt"
	"runtime"
)

// Build information, injected via ldflags at build time
var (
	// Version is the git tag or semantic version
	Version = "dev"
	// Commit is the git commit SHA
	Commit = "unknown"
	// BuildTime is the ISO 8601 build timestamp
	BuildTime = "unknown"
)

const Service = "voteroom"

type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Service:   Service,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// UserAgent identifies outbound connections made by this build.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", Service, Version)
}
