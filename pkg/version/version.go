package version

// Version is the current sketchweb release.
const Version = "1.4.0"

// BuildVersion returns the version string for display
func BuildVersion() string {
	return "sketchweb version " + Version
}

// APIVersion returns just the version number for API responses
func APIVersion() string {
	return Version
}
