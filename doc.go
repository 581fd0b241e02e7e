// Package ytmux downloads a single YouTube video as one muxed file.
//
// An acquisition runs five stages in order: the player endpoint supplies the
// title and the adaptive formats; the player script supplies the n-parameter
// transform; the transform signs the chosen video and audio URLs; both streams
// are fetched with sequential byte-range requests; ffmpeg copies the two
// streams into one container.
//
//	res, err := ytmux.New().
//		WithOutputDir("downloads").
//		WithRateLimit(2 << 20).
//		AcquireURL(ctx, "https://www.youtube.com/watch?v=aqz-KE-bpKQ")
//
// Failures are returned as *errs.Error values naming the stage and asset id;
// errors.Is matches the kind (errs.ErrMetadataUnavailable and friends).
package ytmux
