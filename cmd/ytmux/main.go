package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ytget/ytmux"
	"github.com/ytget/ytmux/client"
	"github.com/ytget/ytmux/errs"
	"github.com/ytget/ytmux/internal/logger"
	"github.com/ytget/ytmux/types"
	"github.com/ytget/ytmux/youtube/challenge"
	"github.com/ytget/ytmux/youtube/formats"
)

type options struct {
	input         string
	output        string
	videoFormat   string
	audioFormat   string
	noProgress    bool
	keep          bool
	timeout       time.Duration
	solveTimeout  time.Duration
	chunkSize     int64
	ua            string
	proxy         string
	rateLimit     int64
	engine        challenge.Engine
	ffmpeg        string
	clientName    string
	clientVersion string
	logConfig     string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	lg, err := setupLogger(opts.logConfig)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid log config: %v\n", err)
		return 2
	}
	logger.SetGlobalLogger(lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.NewWith(client.Config{Timeout: opts.timeout, UserAgent: opts.ua, ProxyURL: opts.proxy})
	d := ytmux.New().
		WithHTTPClient(c.HTTPClient).
		WithUserAgent(c.UserAgent).
		WithOutputDir(opts.output).
		WithInnertubeClient(opts.clientName, opts.clientVersion).
		WithEngine(opts.engine).
		WithSolveTimeout(opts.solveTimeout).
		WithChunkSize(opts.chunkSize).
		WithRateLimit(opts.rateLimit).
		WithFFmpeg(opts.ffmpeg).
		WithKeepIntermediates(opts.keep).
		WithLogger(lg)
	if opts.videoFormat != "" {
		d = d.WithVideoSelector(formats.ParseSelector(opts.videoFormat, formats.DefaultVideoPrefix))
	}
	if opts.audioFormat != "" {
		d = d.WithAudioSelector(formats.ParseSelector(opts.audioFormat, formats.DefaultAudioPrefix))
	}

	var bars *progressBars
	if !opts.noProgress {
		bars = newProgressBars(stderr)
		d = d.WithProgress(bars.update)
	}

	res, err := d.AcquireURL(ctx, opts.input)
	bars.finish()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errs.IsScrapeBreakage(err) {
			fmt.Fprintln(stderr, "The player layout may have changed; try -engine otto or report the asset id.")
		}
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "Saved: %s (%s)\n", res.OutputPath, res.Elapsed.Round(time.Millisecond))
	return 0
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var (
		opts       options
		flagRate   string
		flagChunk  string
		flagEngine string
	)

	fs := flag.NewFlagSet("ytmux", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.output, "output", "", "Output directory. Empty means the working directory")
	fs.StringVar(&opts.videoFormat, "video-format", "", "Video selector (e.g., 'itag=248', 'best', 'height<=720')")
	fs.StringVar(&opts.audioFormat, "audio-format", "", "Audio selector (e.g., 'itag=251', 'best')")
	fs.BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	fs.BoolVar(&opts.keep, "keep", false, "Keep the per-stream files after muxing")
	fs.DurationVar(&opts.timeout, "http-timeout", 0, "HTTP timeout per request (e.g., 30s, 1m). 0 uses the client default")
	fs.DurationVar(&opts.solveTimeout, "solve-timeout", challenge.DefaultSolveTimeout, "Time limit for evaluating the n transform")
	fs.StringVar(&flagChunk, "chunk", "10MiB", "Byte-range size per request (e.g., 10MiB, 512KiB)")
	fs.StringVar(&opts.ua, "ua", "", "Override User-Agent header")
	fs.StringVar(&opts.proxy, "proxy", "", "Proxy URL (http/https/socks5)")
	fs.StringVar(&flagRate, "rate-limit", "", "Download rate limit (e.g., 2MiB/s, 500KiB/s)")
	fs.StringVar(&flagEngine, "engine", string(challenge.EngineGoja), "JavaScript engine for the n transform: goja or otto")
	fs.StringVar(&opts.ffmpeg, "ffmpeg", "ffmpeg", "Path to the ffmpeg executable")
	fs.StringVar(&opts.clientName, "client-name", "", "Innertube client name (e.g., WEB, ANDROID)")
	fs.StringVar(&opts.clientVersion, "client-version", "", "Innertube client version")
	fs.StringVar(&opts.logConfig, "log-config", "", "JSON logging config file; YTMUX_LOG_* variables override it")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ytmux [flags] <video_url_or_id>\n")
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, errors.New("exactly one video URL or id is required")
	}
	opts.input = strings.TrimSpace(fs.Arg(0))

	engine, err := challenge.ParseEngine(flagEngine)
	if err != nil {
		return nil, err
	}
	opts.engine = engine

	if flagRate != "" {
		if opts.rateLimit = parseRate(flagRate); opts.rateLimit <= 0 {
			return nil, fmt.Errorf("invalid -rate-limit %q", flagRate)
		}
	}
	if opts.chunkSize = parseRate(flagChunk); opts.chunkSize <= 0 {
		return nil, fmt.Errorf("invalid -chunk %q", flagChunk)
	}
	return &opts, nil
}

func setupLogger(path string) (*logger.Logger, error) {
	cfg := logger.DefaultLogConfig()
	if path != "" {
		loaded, err := logger.LoadConfigFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	return logger.CreateLoggerFromConfig(cfg.ApplyEnvironment())
}

// parseRate parses strings like "2MiB/s", "500KiB/s" or "10MiB" into bytes.
func parseRate(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0
	}
	mul := int64(1)
	s = strings.TrimSuffix(s, "/S")
	s = strings.TrimSpace(s)
	sfx := ""
	for _, suf := range []string{"KIB", "MIB", "GIB", "KB", "MB", "GB", "B"} {
		if strings.HasSuffix(s, suf) {
			sfx = suf
			s = strings.TrimSuffix(s, suf)
			break
		}
	}
	s = strings.TrimSpace(s)
	var val float64
	_, err := fmt.Sscanf(s, "%f", &val)
	if err != nil || val <= 0 {
		return 0
	}
	switch sfx {
	case "KIB":
		mul = 1024
	case "MIB":
		mul = 1024 * 1024
	case "GIB":
		mul = 1024 * 1024 * 1024
	case "KB":
		mul = 1000
	case "MB":
		mul = 1000 * 1000
	case "GB":
		mul = 1000 * 1000 * 1000
	}
	return int64(val * float64(mul))
}

// progressBars keeps one byte bar per stream. Streams download one after
// another, so a new stream name finishes the previous bar.
type progressBars struct {
	w      io.Writer
	stream string
	bar    *progressbar.ProgressBar
}

func newProgressBars(w io.Writer) *progressBars {
	return &progressBars{w: w}
}

func (p *progressBars) update(ev types.Progress) {
	if p.bar == nil || ev.Stream != p.stream {
		p.finish()
		p.stream = ev.Stream
		p.bar = progressbar.NewOptions64(ev.BytesTotal,
			progressbar.OptionSetDescription(ev.Stream),
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}
	_ = p.bar.Set64(ev.BytesDone)
}

func (p *progressBars) finish() {
	if p == nil || p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	fmt.Fprintln(p.w)
	p.bar = nil
}
