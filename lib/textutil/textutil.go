package textutil

import (
	"regexp"
	"strings"
)

var separatorRegex = regexp.MustCompile(`[ _]+`)

// NormalizePageName canonicalizes a display name into the form used in
// page urls: lowercase with spaces and underscores turned into hyphens.
func NormalizePageName(name string) string {
	name = strings.TrimSpace(name)
	name = separatorRegex.ReplaceAllString(name, "-")
	return strings.ToLower(name)
}
