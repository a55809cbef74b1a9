// Package locator normalizes result locators returned by the colorization
// service so they resolve against the service origin rather than the client's.
package locator

import "strings"

// absoluteSchemes are passed through untouched by Resolve.
var absoluteSchemes = []string{"http://", "https://", "s3://"}

// IsAbsolute reports whether loc starts with a recognized absolute scheme.
func IsAbsolute(loc string) bool {
	lower := strings.ToLower(loc)
	for _, scheme := range absoluteSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// Resolve prefixes relative locators with origin. Absolute and empty
// locators are returned unchanged. An empty origin means "same origin as the
// client", so relative locators stay relative.
func Resolve(origin, loc string) string {
	if loc == "" || IsAbsolute(loc) {
		return loc
	}
	return origin + loc
}
