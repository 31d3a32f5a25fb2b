package naming

import (
	"path/filepath"
	"strings"
	"unicode"
)

// DefaultName is used when a title sanitizes down to nothing.
const DefaultName = "file"

// DefaultMaxLen is the title length used for generated file names.
const DefaultMaxLen = 80

// SafeTitle turns an arbitrary user string into a filesystem-safe base name.
// Letters, digits, spaces, '_', '-' and '.' are kept, everything else becomes '_'.
// The input is cut to maxLen runes before surrounding whitespace is trimmed.
func SafeTitle(title string, maxLen int) string {
	var b strings.Builder
	n := 0
	for _, r := range title {
		if maxLen > 0 && n >= maxLen {
			break
		}
		n++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' || r == '-' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	safe := strings.TrimSpace(b.String())
	if safe == "" {
		return DefaultName
	}
	return safe
}

// WithSuffix inserts suffix between the base name and the extension:
// "clip.mp4" + "_noaudio" -> "clip_noaudio.mp4".
func WithSuffix(name, suffix string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + suffix + ext
}

// WithExt replaces the extension of name with ext (given without the dot).
func WithExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + "." + strings.TrimPrefix(ext, ".")
}
