// Package formats parses adaptive stream formats and selects the video and
// audio pair to download.
package formats

import (
	"strings"

	"github.com/ytget/ytmux/types"
)

// hasDirectURL returns true when the format already contains a resolvable URL.
func hasDirectURL(format types.StreamFormat) bool {
	return strings.TrimSpace(format.URL) != ""
}

// mimeHasPrefix reports whether the MIME type starts with prefix, ignoring case.
// An empty prefix matches everything.
func mimeHasPrefix(format types.StreamFormat, prefix string) bool {
	p := strings.ToLower(strings.TrimSpace(prefix))
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(format.MimeType)), p)
}

// itagEquals checks that format's itag matches the specified itag value.
// Returns false if itag is 0 or negative.
func itagEquals(format types.StreamFormat, itag int) bool {
	return itag > 0 && format.Itag == itag
}

// withinHeight checks whether the format's Quality label height is within [minHeight, maxHeight].
// A bound of 0 is ignored. Formats without a height label count as height 0.
func withinHeight(format types.StreamFormat, minHeight int, maxHeight int) bool {
	if minHeight <= 0 && maxHeight <= 0 {
		return true
	}
	h := parseHeight(format.Quality)
	if minHeight > 0 && h < minHeight {
		return false
	}
	if maxHeight > 0 && h > maxHeight {
		return false
	}
	return true
}

// betterByHeightThenBitrate compares two formats and returns true when candidate is better than current
// using height as primary criterion and bitrate as a tiebreaker.
func betterByHeightThenBitrate(candidate types.StreamFormat, current types.StreamFormat) bool {
	candidateHeight := parseHeight(candidate.Quality)
	currentHeight := parseHeight(current.Quality)
	if candidateHeight != currentHeight {
		return candidateHeight > currentHeight
	}
	return candidate.Bitrate > current.Bitrate
}
