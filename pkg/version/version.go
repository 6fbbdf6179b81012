// Package version exposes build-time version metadata.
package version

// URLFilterVersion is the semantic version string embedded at build time.
var URLFilterVersion = "0.0.0-src"

// Set version at compile time with
// go build -ldflags "-X urlfilter/pkg/version.URLFilterVersion=1.0.0" -o urlfilter

// For a release build with version and optimization flags:
// go build -ldflags "-s -w -X urlfilter/pkg/version.URLFilterVersion=1.0.0" -o urlfilter
