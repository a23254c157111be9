package version

// Build and Commit are injected via -ldflags. Default "dev".
var (
	Build  = "dev"
	Commit = "none"
)

// String renders the build identifier for display.
func String() string {
	if Commit == "" || Commit == "none" {
		return Build
	}
	return Build + " (" + Commit + ")"
}
