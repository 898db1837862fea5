package convert

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// unsafeFilenameChars matches every character that may not appear in a
// sanitized filename.
var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// allowedSuffixes lists the lower-cased extensions accepted for conversion.
var allowedSuffixes = map[string]bool{
	".jpg":  true,
	".jpeg": true,
}

// SecureFilename reduces a client-supplied filename to a safe, flat ASCII
// name that can be used as an archive entry.
//
// The rules mirror the sanitizer most upload forms are used to:
//  1. NFKD-normalize and drop anything that is not ASCII ("ü" → "u").
//  2. Replace path separators with spaces so directories cannot be smuggled in.
//  3. Join whitespace-separated words with "_".
//  4. Drop every character outside [A-Za-z0-9_.-].
//  5. Trim leading and trailing "." and "_".
//
// Examples:
//
//	SecureFilename("My cool photo.JPG")   → "My_cool_photo.JPG"
//	SecureFilename("../../etc/passwd")    → "etc_passwd"
//	SecureFilename("ünïcode.jpeg")        → "unicode.jpeg"
//
// The result may be empty when nothing survives.
func SecureFilename(name string) string {
	decomposed := norm.NFKD.String(name)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	ascii := strings.ReplaceAll(b.String(), "/", " ")

	joined := strings.Join(strings.FieldsFunc(ascii, isFilenameSpace), "_")
	return strings.Trim(unsafeFilenameChars.ReplaceAllString(joined, ""), "._")
}

// isFilenameSpace reports whether r separates words. Besides the usual
// whitespace it includes the ASCII file, group, record and unit separators
// (0x1c-0x1f), which Python's str.split also treats as whitespace.
func isFilenameSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// IsAllowed reports whether a (sanitized) filename has a JPEG suffix.
// The comparison is case-insensitive.
func IsAllowed(name string) bool {
	return allowedSuffixes[strings.ToLower(filepath.Ext(name))]
}

// WebPName replaces the suffix of name with ".webp".
//
//	WebPName("holiday.jpeg") → "holiday.webp"
//	WebPName("a.b.jpg")      → "a.b.webp"
func WebPName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".webp"
}

// displayName is the name used in failure messages. An upload whose name
// sanitizes to nothing is reported as "Unknown".
func displayName(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}
