package errs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Pipeline error kinds. Every stage failure is fatal to the invocation and
// matches exactly one of these through errors.Is.
var (
	// ErrMetadataUnavailable indicates the player endpoint did not yield a title
	// and both required stream formats.
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	// ErrPlayerNotFound indicates the embed page did not reference a player script.
	ErrPlayerNotFound = errors.New("player script not found")
	// ErrChallengeNotFound indicates the n transform could not be located in the player script.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeSolveFailed indicates the extracted transform failed to evaluate.
	ErrChallengeSolveFailed = errors.New("challenge solve failed")
	// ErrDownloadFailed indicates a network failure or a short/invalid range response.
	ErrDownloadFailed = errors.New("download failed")
	// ErrMuxFailed indicates the multiplexer exited with a non-zero status.
	ErrMuxFailed = errors.New("mux failed")
)

// Playability causes reported by the player endpoint. They are wrapped
// under ErrMetadataUnavailable.
var (
	// ErrVideoUnavailable indicates that the requested video cannot be accessed.
	ErrVideoUnavailable = errors.New("video unavailable")
	// ErrPrivate indicates that the video is private and cannot be downloaded.
	ErrPrivate = errors.New("video is private")
	// ErrAgeRestricted indicates that the video has an age restriction.
	ErrAgeRestricted = errors.New("age restricted")
	// ErrGeoBlocked indicates the video is not available in the current region.
	ErrGeoBlocked = errors.New("geo blocked")
	// ErrRateLimited indicates throttling or rate limiting by the remote service.
	ErrRateLimited = errors.New("rate limited")
)

// Stage names used in Error.Stage.
const (
	StageMetadata  = "metadata"
	StageExtract   = "challenge-extract"
	StageSolve     = "challenge-solve"
	StageDownload  = "download"
	StageMux       = "mux"
	StageResolveID = "resolve-id"
)

// Error describes a failed pipeline stage for one asset.
type Error struct {
	Stage   string `json:"stage"`
	AssetID string `json:"asset_id,omitempty"`
	Kind    error  `json:"-"`
	Err     error  `json:"-"`
}

// New wraps cause under kind for the given stage and asset.
func New(stage, assetID string, kind, cause error) *Error {
	return &Error{Stage: stage, AssetID: assetID, Kind: kind, Err: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Stage
	if e.AssetID != "" {
		msg += " [" + e.AssetID + "]"
	}
	switch {
	case e.Err == nil:
		if e.Kind != nil {
			msg += ": " + e.Kind.Error()
		}
	case e.Kind != nil && !errors.Is(e.Err, e.Kind):
		msg += ": " + e.Kind.Error() + ": " + e.Err.Error()
	default:
		// the cause already names the kind
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	kind := ""
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	return json.Marshal(&struct {
		*Alias
		Kind  string `json:"kind,omitempty"`
		Error string `json:"error"`
	}{
		Alias: (*Alias)(e),
		Kind:  kind,
		Error: e.Error(),
	})
}

// Wrapf builds a stage-less error of the given kind with a formatted cause.
// Pipeline code attaches the stage and asset id later with Attach.
func Wrapf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Attach decorates err with stage and asset id. The kind is taken from err
// when it already matches one of the pipeline kinds, otherwise fallback is used.
// An err that is already an *Error is returned unchanged.
func Attach(stage, assetID string, fallback, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	kind := fallback
	for _, k := range kinds {
		if errors.Is(err, k) {
			kind = k
			break
		}
	}
	return New(stage, assetID, kind, err)
}

var kinds = []error{
	ErrMetadataUnavailable,
	ErrPlayerNotFound,
	ErrChallengeNotFound,
	ErrChallengeSolveFailed,
	ErrDownloadFailed,
	ErrMuxFailed,
}

// StageOf returns the stage recorded in err, or "" when err carries none.
func StageOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// IsScrapeBreakage reports whether err stems from an upstream markup or
// script layout change rather than a transfer failure.
func IsScrapeBreakage(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrChallengeNotFound)
}
