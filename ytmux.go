package ytmux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/ytmux/client"
	"github.com/ytget/ytmux/downloader"
	"github.com/ytget/ytmux/errs"
	"github.com/ytget/ytmux/internal/logger"
	"github.com/ytget/ytmux/internal/mimeext"
	internalSanitize "github.com/ytget/ytmux/internal/sanitize"
	"github.com/ytget/ytmux/muxer"
	"github.com/ytget/ytmux/types"
	"github.com/ytget/ytmux/youtube/challenge"
	"github.com/ytget/ytmux/youtube/formats"
	"github.com/ytget/ytmux/youtube/innertube"
)

// ErrInvalidURL indicates that no asset id could be read from the input.
var ErrInvalidURL = errors.New("invalid youtube url")

const (
	streamVideo = "video"
	streamAudio = "audio"
)

// Options contains configuration for acquisitions.
//
// Use chainable setters on Downloader to populate these options.
type Options struct {
	HTTPClient        *http.Client
	ProgressFunc      func(types.Progress)
	OutputDir         string
	BaseURL           string
	ITClientName      string
	ITClientVersion   string
	UserAgent         string
	Engine            challenge.Engine
	SolveTimeout      time.Duration
	ChunkSize         int64
	RateLimitBps      int64
	FFmpegPath        string
	VideoSelector     formats.Selector
	AudioSelector     formats.Selector
	KeepIntermediates bool
	Logger            *logger.Logger
}

// Result describes a finished acquisition.
type Result struct {
	AssetID      types.AssetID
	RunID        string
	Title        string
	OutputPath   string
	Video        types.StreamFormat
	Audio        types.StreamFormat
	Challenge    types.Challenge
	VideoSession types.DownloadSession
	AudioSession types.DownloadSession
	Elapsed      time.Duration
}

// Downloader acquires a single asset: metadata, n challenge, signed URLs,
// segmented video and audio downloads, then a stream-copy mux.
// A Downloader holds configuration only; every Acquire call is independent.
type Downloader struct {
	options Options
}

// New creates a new Downloader instance with default options.
func New() *Downloader {
	return &Downloader{}
}

// WithHTTPClient sets a custom HTTP client to be used for all network calls.
func (d *Downloader) WithHTTPClient(c *http.Client) *Downloader {
	d.options.HTTPClient = c
	return d
}

// WithProgress registers a callback that receives a progress event per chunk.
func (d *Downloader) WithProgress(f func(types.Progress)) *Downloader {
	d.options.ProgressFunc = f
	return d
}

// WithOutputDir sets the directory receiving intermediates and the final file.
// Empty means the working directory.
func (d *Downloader) WithOutputDir(dir string) *Downloader {
	d.options.OutputDir = dir
	return d
}

// WithInnertubeClient sets the Innertube client name and version to use.
func (d *Downloader) WithInnertubeClient(name, version string) *Downloader {
	d.options.ITClientName = strings.TrimSpace(name)
	d.options.ITClientVersion = strings.TrimSpace(version)
	return d
}

// WithBaseURL points metadata and player scraping at another origin.
func (d *Downloader) WithBaseURL(base string) *Downloader {
	d.options.BaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	return d
}

// WithUserAgent sets the User-Agent for page, script and media requests.
func (d *Downloader) WithUserAgent(ua string) *Downloader {
	d.options.UserAgent = strings.TrimSpace(ua)
	return d
}

// WithEngine selects the JavaScript interpreter for the n transform.
func (d *Downloader) WithEngine(e challenge.Engine) *Downloader {
	d.options.Engine = e
	return d
}

// WithSolveTimeout bounds a single transform evaluation.
func (d *Downloader) WithSolveTimeout(timeout time.Duration) *Downloader {
	d.options.SolveTimeout = timeout
	return d
}

// WithChunkSize sets the byte-range span. Non-positive values keep the default.
func (d *Downloader) WithChunkSize(n int64) *Downloader {
	d.options.ChunkSize = n
	return d
}

// WithRateLimit sets a download rate limit in bytes per second. Zero disables limiting.
func (d *Downloader) WithRateLimit(bytesPerSecond int64) *Downloader {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	d.options.RateLimitBps = bytesPerSecond
	return d
}

// WithFFmpeg sets the ffmpeg executable.
func (d *Downloader) WithFFmpeg(path string) *Downloader {
	d.options.FFmpegPath = path
	return d
}

// WithMimePrefixes selects the first video and audio formats whose MIME type
// starts with the given prefixes. Empty prefixes keep the current selector.
func (d *Downloader) WithMimePrefixes(video, audio string) *Downloader {
	if strings.TrimSpace(video) != "" {
		d.options.VideoSelector = formats.FirstByMimePrefix(video)
	}
	if strings.TrimSpace(audio) != "" {
		d.options.AudioSelector = formats.FirstByMimePrefix(audio)
	}
	return d
}

// WithVideoSelector replaces the video format policy.
func (d *Downloader) WithVideoSelector(s formats.Selector) *Downloader {
	d.options.VideoSelector = s
	return d
}

// WithAudioSelector replaces the audio format policy.
func (d *Downloader) WithAudioSelector(s formats.Selector) *Downloader {
	d.options.AudioSelector = s
	return d
}

// WithKeepIntermediates keeps the per-stream files after a successful mux.
func (d *Downloader) WithKeepIntermediates(keep bool) *Downloader {
	d.options.KeepIntermediates = keep
	return d
}

// WithLogger routes pipeline logs to l instead of the global logger.
func (d *Downloader) WithLogger(l *logger.Logger) *Downloader {
	d.options.Logger = l
	return d
}

func (d *Downloader) logger() *logger.Logger {
	if d.options.Logger != nil {
		return d.options.Logger
	}
	return logger.GetGlobalLogger()
}

func (d *Downloader) httpClient() *http.Client {
	if d.options.HTTPClient != nil {
		return d.options.HTTPClient
	}
	return client.NewWith(client.Config{UserAgent: d.options.UserAgent}).HTTPClient
}

// AcquireURL resolves the asset id from a watch, short, embed or youtu.be URL
// (or a bare id) and runs Acquire.
func (d *Downloader) AcquireURL(ctx context.Context, rawURL string) (*Result, error) {
	id, err := ExtractVideoID(rawURL)
	if err != nil {
		return nil, errs.New(errs.StageResolveID, "", ErrInvalidURL, err)
	}
	return d.Acquire(ctx, types.AssetID(id))
}

// Acquire runs the whole pipeline for assetID. Stages run strictly in order
// and the first failure ends the run with an *errs.Error naming the stage.
// Cancellation is observed between stages and between download chunks.
func (d *Downloader) Acquire(ctx context.Context, assetID types.AssetID) (*Result, error) {
	id := string(assetID)
	lg := d.logger()
	log := lg.WithComponent(logger.ComponentApp)
	hc := d.httpClient()
	begin := time.Now()

	run, err := uuid.NewV7()
	if err != nil {
		run = uuid.New()
	}
	res := &Result{AssetID: assetID, RunID: run.String()}
	log.Info("acquisition started", logger.Fields{"asset_id": id, "run_id": res.RunID})

	// metadata
	if err := checkpoint(ctx, errs.StageMetadata, id, errs.ErrMetadataUnavailable); err != nil {
		return nil, err
	}
	it := innertube.New(hc).
		WithBaseURL(d.options.BaseURL).
		WithClient(d.options.ITClientName, d.options.ITClientVersion).
		WithLogger(lg)
	pr, err := it.GetPlayerResponse(ctx, id)
	if err != nil {
		return nil, errs.Attach(errs.StageMetadata, id, errs.ErrMetadataUnavailable, err)
	}
	video, audio, err := formats.SelectPair(formats.ParseAdaptive(pr), d.options.VideoSelector, d.options.AudioSelector)
	if err != nil {
		return nil, errs.Attach(errs.StageMetadata, id, errs.ErrMetadataUnavailable, err)
	}
	res.Title = pr.VideoDetails.Title
	if strings.TrimSpace(res.Title) == "" {
		log.Warn("empty title, using default file name", logger.Fields{"asset_id": id})
	}

	// challenge
	if err := checkpoint(ctx, errs.StageExtract, id, errs.ErrChallengeNotFound); err != nil {
		return nil, err
	}
	ex := challenge.NewExtractor(hc, challenge.ExtractorConfig{BaseURL: d.options.BaseURL, UserAgent: d.options.UserAgent}).WithLogger(lg)
	ch, err := ex.Extract(ctx, id)
	if err != nil {
		return nil, errs.Attach(errs.StageExtract, id, errs.ErrChallengeNotFound, err)
	}
	res.Challenge = ch

	// signing
	solver := challenge.NewSolver(challenge.SolverConfig{Engine: d.options.Engine, Timeout: d.options.SolveTimeout}).WithLogger(lg)
	for _, f := range []*types.StreamFormat{&video, &audio} {
		signed, err := solver.SignURL(ctx, ch, f.URL)
		if err != nil {
			return nil, errs.Attach(errs.StageSolve, id, errs.ErrChallengeSolveFailed, err)
		}
		f.URL = signed
	}
	res.Video, res.Audio = video, audio

	// downloads
	dir := d.options.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.New(errs.StageDownload, id, errs.ErrDownloadFailed, err)
	}
	pair := types.MediaPair{
		VideoPath:  filepath.Join(dir, internalSanitize.ToIntermediateName(res.Title, res.RunID, streamVideo, mimeext.ExtFromMime(video.MimeType))),
		AudioPath:  filepath.Join(dir, internalSanitize.ToIntermediateName(res.Title, res.RunID, streamAudio, mimeext.ExtFromMime(audio.MimeType))),
		OutputPath: filepath.Join(dir, internalSanitize.ToSafeFilename(res.Title, mimeext.ContainerExt(video.MimeType, audio.MimeType))),
	}

	if res.VideoSession, err = d.fetch(ctx, hc, lg, streamVideo, video, pair.VideoPath); err != nil {
		return nil, errs.Attach(errs.StageDownload, id, errs.ErrDownloadFailed, err)
	}
	if res.AudioSession, err = d.fetch(ctx, hc, lg, streamAudio, audio, pair.AudioPath); err != nil {
		return nil, errs.Attach(errs.StageDownload, id, errs.ErrDownloadFailed, err)
	}

	// mux
	if err := checkpoint(ctx, errs.StageMux, id, errs.ErrMuxFailed); err != nil {
		return nil, err
	}
	mx := muxer.NewFFmpegMuxer(d.options.FFmpegPath).WithLogger(lg)
	mx.KeepInputs = d.options.KeepIntermediates
	if err := mx.Merge(ctx, pair, types.Metadata{Title: res.Title}); err != nil {
		return nil, errs.Attach(errs.StageMux, id, errs.ErrMuxFailed, err)
	}
	res.OutputPath = pair.OutputPath
	res.Elapsed = time.Since(begin)

	log.Info("acquisition finished", logger.Fields{"asset_id": id, "run_id": res.RunID, "output": res.OutputPath, "elapsed": res.Elapsed.String()})
	return res, nil
}

func (d *Downloader) fetch(ctx context.Context, hc *http.Client, lg *logger.Logger, stream string, f types.StreamFormat, dest string) (types.DownloadSession, error) {
	if err := ctx.Err(); err != nil {
		return types.DownloadSession{}, fmt.Errorf("%w: %w", errs.ErrDownloadFailed, err)
	}
	dl := downloader.New(hc, d.options.ProgressFunc, d.options.RateLimitBps).
		WithChunkSize(d.options.ChunkSize).
		WithStream(stream).
		WithUserAgent(d.options.UserAgent).
		WithLogger(lg)
	return dl.Download(ctx, f.URL, f.ContentLength, dest)
}

func checkpoint(ctx context.Context, stage, id string, kind error) error {
	if err := ctx.Err(); err != nil {
		return errs.New(stage, id, kind, err)
	}
	return nil
}

var bareIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID returns the asset id of a watch, shorts, embed, live or
// youtu.be URL. A bare 11-character id is returned as is.
func ExtractVideoID(videoURL string) (string, error) {
	videoURL = strings.TrimSpace(videoURL)
	if bareIDRe.MatchString(videoURL) {
		return videoURL, nil
	}
	u, err := url.Parse(videoURL)
	if err != nil {
		return "", err
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	var id string
	switch host {
	case "youtu.be":
		id = strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0]
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if u.Path == "/watch" || strings.HasPrefix(u.Path, "/watch/") {
			id = u.Query().Get("v")
			break
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/v/", "/live/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id = strings.SplitN(strings.TrimPrefix(u.Path, prefix), "/", 2)[0]
				break
			}
		}
	}
	if !bareIDRe.MatchString(id) {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, videoURL)
	}
	return id, nil
}
