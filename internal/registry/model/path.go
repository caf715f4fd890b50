package model

import (
	"fmt"
	"regexp"
	"strings"
)

// pathPattern accepts one or two slash-separated segments: /foo or /foo/bar.
// Segments are lowercase alphanumerics plus hyphen and underscore.
var pathPattern = regexp.MustCompile(`^/[a-z0-9_-]+(/[a-z0-9_-]+)?$`)

// NormalizePath coerces raw input into canonical path form: exactly one
// leading slash, no trailing slash, lowercase. It does not validate the
// result; call ValidatePath for that.
func NormalizePath(raw string) string {
	p := strings.TrimSpace(strings.ToLower(raw))
	p = "/" + strings.Trim(p, "/")
	return p
}

// ValidatePath reports whether p is a canonical routing path of the form
// /foo or /foo/bar.
func ValidatePath(p string) error {
	if p == "/" || p == "" {
		return &ErrValidation{Msg: "path is required"}
	}
	if strings.Contains(p, "//") {
		return &ErrValidation{Msg: fmt.Sprintf("path %q contains an empty segment", p)}
	}
	if !pathPattern.MatchString(p) {
		return &ErrValidation{Msg: fmt.Sprintf("path %q must look like /name or /name/sub (lowercase letters, digits, - and _)", p)}
	}
	return nil
}

// TechnicalName is the path stripped of its surrounding slashes; scope
// entries may grant access by this name instead of the display name.
func TechnicalName(path string) string {
	return strings.Trim(path, "/")
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a path segment from a display name: lowercase, runs of
// non-alphanumerics collapsed to single hyphens.
func Slugify(name string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}
