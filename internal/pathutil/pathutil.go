// Package pathutil centralizes relative-path normalization. Per
// SPEC_FULL.md / spec.md §9 Design Notes, every relpath comparison in this
// module goes through Normalize so no other package re-derives it with an
// ad-hoc strings.ReplaceAll("\\", "/").
package pathutil

import (
	"path"
	"strings"
	"unicode"
)

// Normalize converts an OS path to the canonical relpath form used as a
// FileRecord key: forward slashes, no leading slash, combining marks
// dropped (see normalizeUnicode),
// case preserved as-encountered (comparisons are host-sensitive, per
// spec.md §4.2).
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return normalizeUnicode(p)
}

// normalizeUnicode applies a conservative compatibility fold: it leaves
// ASCII untouched (the overwhelming majority of mod relpaths) and, for a
// path containing non-ASCII runes, drops every combining mark (Unicode
// category Mn). Precomposed characters are left as they are, so a
// precomposed and a decomposed spelling of the same name do not
// collapse to one string. No Unicode normalization library is vendored
// in this module's dependency set, so full NFC/NFKC folding is not done.
func normalizeUnicode(p string) string {
	hasNonASCII := false
	for _, r := range p {
		if r > unicode.MaxASCII {
			hasNonASCII = true
			break
		}
	}
	if !hasNonASCII {
		return p
	}

	var b strings.Builder
	b.Grow(len(p))
	for _, r := range p {
		if unicode.Is(unicode.Mn, r) {
			// Drop combining marks that trail a base rune so visually
			// identical paths collapse to one byte sequence.
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Join normalizes the result of joining a root-relative directory and a
// child segment, keeping everything forward-slashed.
func Join(parts ...string) string {
	return Normalize(strings.Join(parts, "/"))
}

// ToSlash is a thin alias kept for call sites that only need slash
// conversion without full normalization (e.g. displaying a host path).
func ToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
