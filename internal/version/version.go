package version

import "fmt"

// Set through -ldflags "-X morpho-rate-alerts/internal/version.Version=..." at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build information block printed by the version command.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildDate)
}

// UserAgent is sent with outbound API requests.
func UserAgent() string {
	return "ratealert/" + Version
}
