// Package version reports build information injected at link time.
//
// Build with:
//
//	go build -ldflags "-X github.com/eid-tools/dds-hashcode/internal/version.version=v1.2.0 \
//	  -X github.com/eid-tools/dds-hashcode/internal/version.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ) \
//	  -X github.com/eid-tools/dds-hashcode/internal/version.gitCommit=$(git rev-parse --short HEAD)"
package version

import "runtime/debug"

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// Info is the build information returned by the /version endpoint and the --version flags
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
}

// Get returns the build information.
// When the binary was built without ldflags the VCS revision recorded by the go tool is used (if any)
func Get() Info {
	info := Info{
		Version:   version,
		BuildDate: buildDate,
		GitCommit: gitCommit,
	}

	if info.GitCommit != "unknown" {
		return info
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.GitCommit = setting.Value
			case "vcs.time":
				if info.BuildDate == "unknown" {
					info.BuildDate = setting.Value
				}
			}
		}
	}
	return info
}
