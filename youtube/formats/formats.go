package formats

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ytget/ytmux/errs"
	"github.com/ytget/ytmux/internal/logger"
	"github.com/ytget/ytmux/types"
	"github.com/ytget/ytmux/youtube/innertube"
)

// Default MIME prefixes for the two streams of a pair.
const (
	DefaultVideoPrefix = "video/webm"
	DefaultAudioPrefix = "audio/webm"
)

var heightRe = regexp.MustCompile(`([0-9]{3,4})p`)

func parseHeight(label string) int {
	m := heightRe.FindStringSubmatch(label)
	if len(m) >= 2 {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	return 0
}

// ParseAdaptive converts streamingData.adaptiveFormats into stream formats,
// preserving the order in which the platform listed them. Entries that only
// carry a signatureCipher keep an empty URL.
func ParseAdaptive(data *innertube.PlayerResponse) []types.StreamFormat {
	if data == nil {
		return nil
	}
	out := make([]types.StreamFormat, 0, len(data.StreamingData.AdaptiveFormats))
	for _, f := range data.StreamingData.AdaptiveFormats {
		var size int64
		if parsed, err := strconv.ParseInt(strings.TrimSpace(f.ContentLength), 10, 64); err == nil {
			size = parsed
		}
		out = append(out, types.StreamFormat{
			Itag:          f.Itag,
			MimeType:      f.MimeType,
			URL:           f.URL,
			ContentLength: size,
			Bitrate:       f.Bitrate,
			Quality:       f.QualityLabel,
		})
	}
	return out
}

// Selector picks one stream out of a list.
type Selector func([]types.StreamFormat) (types.StreamFormat, bool)

// FirstByMimePrefix selects the first format whose MIME type starts with
// prefix, compared case-insensitively.
func FirstByMimePrefix(prefix string) Selector {
	return func(list []types.StreamFormat) (types.StreamFormat, bool) {
		for _, f := range list {
			if mimeHasPrefix(f, prefix) {
				return f, true
			}
		}
		return types.StreamFormat{}, false
	}
}

// BestByMimePrefix selects the highest format (height, then bitrate) among
// those whose MIME type starts with prefix. Ties keep the earlier entry.
func BestByMimePrefix(prefix string) Selector {
	return func(list []types.StreamFormat) (types.StreamFormat, bool) {
		var best types.StreamFormat
		found := false
		for _, f := range list {
			if !mimeHasPrefix(f, prefix) {
				continue
			}
			if !found || betterByHeightThenBitrate(f, best) {
				best = f
				found = true
			}
		}
		return best, found
	}
}

// ByItag selects the format with the given itag.
func ByItag(itag int) Selector {
	return func(list []types.StreamFormat) (types.StreamFormat, bool) {
		for _, f := range list {
			if itagEquals(f, itag) {
				return f, true
			}
		}
		return types.StreamFormat{}, false
	}
}

// MaxHeight narrows next to formats no taller than maxHeight.
func MaxHeight(maxHeight int, next Selector) Selector {
	return func(list []types.StreamFormat) (types.StreamFormat, bool) {
		filtered := make([]types.StreamFormat, 0, len(list))
		for _, f := range list {
			if withinHeight(f, 0, maxHeight) {
				filtered = append(filtered, f)
			}
		}
		return next(filtered)
	}
}

// ParseSelector turns a textual selector into a Selector. Supported forms:
//   - "" or "first": first format matching prefix
//   - "best": highest height then bitrate matching prefix
//   - itag=NN
//   - height<=NNN: first format matching prefix no taller than NNN
//
// Unknown forms fall back to the first match.
func ParseSelector(expr, prefix string) Selector {
	q := strings.TrimSpace(strings.ToLower(expr))
	switch {
	case q == "best":
		return BestByMimePrefix(prefix)
	case strings.HasPrefix(q, "itag="):
		if it, err := strconv.Atoi(strings.TrimPrefix(q, "itag=")); err == nil {
			return ByItag(it)
		}
	case strings.HasPrefix(q, "height<="):
		if v, err := strconv.Atoi(strings.TrimPrefix(q, "height<=")); err == nil {
			return MaxHeight(v, FirstByMimePrefix(prefix))
		}
	}
	return FirstByMimePrefix(prefix)
}

// SelectPair applies the video and audio selectors. A nil selector uses the
// default prefix for its side. Both picks must carry a direct URL and a
// positive content length.
func SelectPair(list []types.StreamFormat, videoSel, audioSel Selector) (video, audio types.StreamFormat, err error) {
	if videoSel == nil {
		videoSel = FirstByMimePrefix(DefaultVideoPrefix)
	}
	if audioSel == nil {
		audioSel = FirstByMimePrefix(DefaultAudioPrefix)
	}
	video, err = pick(list, videoSel, "video")
	if err != nil {
		return types.StreamFormat{}, types.StreamFormat{}, err
	}
	audio, err = pick(list, audioSel, "audio")
	if err != nil {
		return types.StreamFormat{}, types.StreamFormat{}, err
	}
	return video, audio, nil
}

func pick(list []types.StreamFormat, sel Selector, stream string) (types.StreamFormat, error) {
	log := logger.WithComponent(logger.ComponentFormat)
	f, ok := sel(list)
	if !ok {
		return types.StreamFormat{}, errs.Wrapf(errs.ErrMetadataUnavailable, "no %s format among %d candidates", stream, len(list))
	}
	if !hasDirectURL(f) {
		return types.StreamFormat{}, errs.Wrapf(errs.ErrMetadataUnavailable, "%s format itag %d has no direct url", stream, f.Itag)
	}
	if f.ContentLength <= 0 {
		return types.StreamFormat{}, errs.Wrapf(errs.ErrMetadataUnavailable, "%s format itag %d has no content length", stream, f.Itag)
	}
	log.Debug("format selected", logger.Fields{"stream": stream, "itag": f.Itag, "mime": f.MimeType, "bytes": f.ContentLength})
	return f, nil
}
