package sanitize

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxBaseBytes caps the UTF-8 length of the title part of a name. With a
	// ".<uuid>.video.webm" suffix the result stays below the 255-byte limit
	// of common filesystems.
	MaxBaseBytes = 180
	// DefaultExt is the default extension used when none is provided.
	DefaultExt = "webm"
	// DefaultName is the replacement name when the title is empty.
	DefaultName = "video"
)

var unsafeChars = regexp.MustCompile(`[\\/:*?"<>|]+`)

// ToSafeFilename builds a cross-platform safe filename from title and extension (without dot in ext).
func ToSafeFilename(title, ext string) string {
	return safeBase(title) + "." + normalizeExt(ext)
}

// ToIntermediateName builds the name of a per-stream temporary file, e.g.
// "Title.<run>.video.webm". The run id keeps concurrent invocations apart.
func ToIntermediateName(title, runID, stream, ext string) string {
	name := safeBase(title)
	if runID != "" {
		name += "." + runID
	}
	if stream != "" {
		name += "." + stream
	}
	return name + "." + normalizeExt(ext)
}

func safeBase(title string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, title)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)
	name = strings.TrimLeft(name, ".")
	name = strings.TrimSpace(truncateBytes(name, MaxBaseBytes))
	if name == "" {
		name = DefaultName
	}
	return filepath.Clean(name)
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func normalizeExt(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = DefaultExt
	}
	return ext
}
