package buildinfo

import "log"

// Injected via -ldflags at release build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Log writes a one-line build summary for the named service.
func Log(service string) {
	log.Printf("%s version=%s commit=%s date=%s", service, Version, Commit, Date)
}
