package version

import "fmt"

const product = "file-manager"

var (
	Version   = "dev"
	BuildDate = "unknown"
	Commit    = "unknown"
)

func GetVersion() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s)", product, Version, Commit, BuildDate)
}

func GetShortVersion() string {
	return Version
}

// Product is the value sent in the Server response header.
func Product() string {
	return product + "/" + Version
}
