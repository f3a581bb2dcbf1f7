package buildconfig

// Injected at link time, e.g.
// go build -ldflags "-X .../internal/buildconfig.version=v0.3.0 -X .../internal/buildconfig.commit=$(git rev-parse --short HEAD)"
var (
	version = "dev"
	commit  = "unknown"
)

func Version() string { return version }

func Commit() string { return commit }

// VersionInfo is the build block embedded in the metrics payload.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}
