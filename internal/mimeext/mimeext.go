package mimeext

import (
	"strings"
)

const (
	// DefaultExt is the extension used when MIME is unknown or empty.
	DefaultExt = "webm"

	// ExtMP4 is the file extension for MP4 video.
	ExtMP4 = "mp4"
	// ExtM4A is the file extension for MP4 audio.
	ExtM4A = "m4a"
	// ExtWebM is the file extension for WebM media.
	ExtWebM = "webm"
	// ExtMKV is the container used when the two inputs do not share a family.
	ExtMKV = "mkv"

	// MimeVideoMP4 is the MIME type for MP4 video.
	MimeVideoMP4 = "video/mp4"
	// MimeAudioMP4 is the MIME type for MP4 audio.
	MimeAudioMP4 = "audio/mp4"
	// MimeVideoWebM is the MIME type for WebM video.
	MimeVideoWebM = "video/webm"
	// MimeAudioWebM is the MIME type for WebM audio.
	MimeAudioWebM = "audio/webm"
)

// Base strips parameters (codecs=...) and lowercases a MIME type.
func Base(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}

// ExtFromMime returns file extension (without dot) for given mime type.
// Falls back to subtype or webm if unknown.
func ExtFromMime(mime string) string {
	base := Base(mime)
	if base == "" {
		return DefaultExt
	}
	switch base {
	case MimeVideoMP4:
		return ExtMP4
	case MimeAudioMP4:
		return ExtM4A
	case MimeVideoWebM, MimeAudioWebM:
		return ExtWebM
	}
	parts := strings.Split(base, "/")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}
	return DefaultExt
}

// ContainerExt picks the output container for a stream-copy mux of the
// given video and audio MIME types.
func ContainerExt(videoMime, audioMime string) string {
	v, a := ExtFromMime(videoMime), ExtFromMime(audioMime)
	switch {
	case v == ExtWebM && a == ExtWebM:
		return ExtWebM
	case v == ExtMP4 && a == ExtM4A:
		return ExtMP4
	default:
		return ExtMKV
	}
}
