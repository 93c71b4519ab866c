package version

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = ""
)

// GetInfo returns a human-readable version string.
func GetInfo() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
