package utils

import (
	"os"

	"github.com/gosimple/slug"
)

// NormalizeSlug creates a URL and key friendly slug using the gosimple/slug library.
// It handles all Unicode characters including Turkish, European, and other languages.
func NormalizeSlug(text string) string {
	if text == "" {
		return ""
	}
	return slug.Make(text)
}

// InstanceID derives the server identity used in coordination store paths
// from a host name. The result never contains a "/".
func InstanceID(hostname string) string {
	id := NormalizeSlug(hostname)
	if id == "" {
		return "instance"
	}
	return id
}

// DefaultInstanceID derives the server identity from the local host name.
// It is stable across restarts so a crashed run can be recognised.
func DefaultInstanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return InstanceID("")
	}
	return InstanceID(hostname)
}

// IsValidJobName reports whether name is safe as a store path segment and
// an engine identity, i.e. it is already its own slug.
func IsValidJobName(name string) bool {
	return name != "" && slug.IsSlug(name)
}
