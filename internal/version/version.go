// Package version reports the graphseed release.
package version

import (
	_ "embed"
	"strings"
)

// Name is the program name reported to MCP servers and HTTP clients.
const Name = "graphseed"

//go:embed VERSION
var versionContent string

// Get returns the current version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// String returns "graphseed <version>".
func String() string {
	return Name + " " + Get()
}
