// Package naming derives display names for image assets from their file names.
package naming

import (
	"regexp"
	"strings"
)

// Separator splits the title from the remaining tags in an asset name.
const Separator = "|"

// legacyPattern matches "|Title|rest": a leading separator, a non-empty title
// without separators, another separator and a non-empty remainder.
var legacyPattern = regexp.MustCompile(`^\|([^|]+)\|(.+)$`)

// DisplayName maps a file name without extension to its display name.
//
// Two conventions are in use. "Title|tag1-tag2" is already in display form
// and is returned as is. The legacy "|Title|rest" form loses its leading
// separator. Anything else passes through unchanged.
func DisplayName(base string) string {
	m := legacyPattern.FindStringSubmatch(base)
	if m == nil {
		return base
	}

	return m[1] + Separator + m[2]
}

// Ext returns the extension of name including the dot, or "" when there is
// none. A leading dot marks a hidden file, not an extension, so ".jpg" has
// no extension while "a.b.jpg" has ".jpg".
func Ext(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}

	return name[i:]
}

// StripExt removes only the final extension from name.
func StripExt(name string) string {
	return strings.TrimSuffix(name, Ext(name))
}
