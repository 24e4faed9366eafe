package version

// Version is set at build time via -ldflags "-X scriptdialogue/internal/version.Version=...".
var Version = "0.1.0-dev"

// String returns a human readable version string.
func String() string {
	return "scriptdialogue " + Version
}
