package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ytget/ytmux/client"
	"github.com/ytget/ytmux/errs"
	"github.com/ytget/ytmux/internal/logger"
	"github.com/ytget/ytmux/types"
)

const (
	// DefaultChunkSize is the span of one range request.
	DefaultChunkSize int64 = 10 << 20

	copyBufferSizeBytes = 32 * 1024 // 32KB
	mebibyte            = 1 << 20
	filePerm            = 0o644

	headerRange          = "Range"
	headerContentRange   = "Content-Range"
	headerUserAgent      = "User-Agent"
	headerAccept         = "Accept"
	headerAcceptEncoding = "Accept-Encoding"
	headerConnection     = "Connection"
	headerCacheControl   = "Cache-Control"

	stageDownload = "download"
)

// Downloader fetches one stream with sequential inclusive byte-range requests
// and appends each chunk to the destination file.
type Downloader struct {
	Client       *http.Client
	ProgressFunc func(types.Progress)

	chunkSize int64
	stream    string
	userAgent string
	limiter   *rate.Limiter
	log       *logger.ComponentLogger
}

// New creates a new downloader instance with sane defaults.
// httpClient is copied without its total Timeout; nil uses a zero http.Client.
// rateLimitBps<=0 disables limiting.
func New(httpClient *http.Client, progressFunc func(types.Progress), rateLimitBps int64) *Downloader {
	var hc http.Client
	if httpClient != nil {
		hc = *httpClient
	}
	// Client.Timeout also bounds the body read, which cuts slow or rate
	// limited chunks short. Stalls are left to the transport and ctx.
	hc.Timeout = 0
	d := &Downloader{
		Client:       &hc,
		ProgressFunc: progressFunc,
		chunkSize:    DefaultChunkSize,
		userAgent:    client.UserAgent,
		log:          logger.WithComponent(logger.ComponentDownloader),
	}
	if rateLimitBps > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(rateLimitBps), copyBufferSizeBytes)
	}
	return d
}

// WithChunkSize sets the range span in bytes. Non-positive values are ignored.
func (d *Downloader) WithChunkSize(n int64) *Downloader {
	if n > 0 {
		d.chunkSize = n
	}
	return d
}

// WithStream labels progress events and log lines ("video", "audio").
func (d *Downloader) WithStream(label string) *Downloader {
	d.stream = label
	return d
}

// WithUserAgent overrides the User-Agent sent with range requests.
func (d *Downloader) WithUserAgent(ua string) *Downloader {
	if ua != "" {
		d.userAgent = ua
	}
	return d
}

// WithLogger replaces the component logger.
func (d *Downloader) WithLogger(l *logger.Logger) *Downloader {
	if l != nil {
		d.log = l.WithComponent(logger.ComponentDownloader)
	}
	return d
}

// Download writes bytes [0,total) of urlStr to destPath. The destination is
// truncated first, so a repeated call starts over. Each byte is requested
// exactly once; the loop stops at the first failure and leaves the partial
// file in place. The returned session counts every byte appended to the
// file, including those of a chunk that failed midway.
func (d *Downloader) Download(ctx context.Context, urlStr string, total int64, destPath string) (types.DownloadSession, error) {
	session := types.DownloadSession{SourceURL: urlStr, DestinationPath: destPath, TotalLength: total}
	if total <= 0 {
		return session, errs.Wrapf(errs.ErrDownloadFailed, "invalid content length %d", total)
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return session, errs.Wrapf(errs.ErrDownloadFailed, "open %s: %v", destPath, err)
	}
	defer func() { _ = out.Close() }()

	d.log.Info("download started", logger.Fields{"stream": d.stream, "bytes": total, "chunk_size": d.chunkSize, "dest": destPath})
	begin := time.Now()

	for chunk := 1; session.BytesWritten < total; chunk++ {
		if err := ctx.Err(); err != nil {
			return session, fmt.Errorf("%w: %w", errs.ErrDownloadFailed, err)
		}
		start := session.BytesWritten
		end := min(start+d.chunkSize, total) - 1

		t0 := time.Now()
		n, err := d.fetchRange(ctx, out, urlStr, start, end, total)
		session.BytesWritten = start + n
		if err != nil {
			d.log.Error("chunk failed", logger.Fields{"stream": d.stream, "chunk": chunk, "start": start, "end": end, "written": n, "error": err.Error()})
			return session, err
		}
		d.emit(chunk, session, end-start+1, time.Since(t0))
	}

	d.log.Info("download finished", logger.Fields{"stream": d.stream, "bytes": session.BytesWritten, "elapsed": time.Since(begin).String()})
	return session, nil
}

// fetchRange requests bytes start..end inclusive and appends exactly that
// many bytes to out. It returns the number of bytes appended, also on error.
func (d *Downloader) fetchRange(ctx context.Context, out io.Writer, urlStr string, start, end, total int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return 0, errs.Wrapf(errs.ErrDownloadFailed, "build request: %v", err)
	}
	rangeVal := fmt.Sprintf("bytes=%d-%d", start, end)
	req.Header.Set(headerRange, rangeVal)
	req.Header.Set(headerUserAgent, d.userAgent)
	req.Header.Set(headerAccept, "*/*")
	req.Header.Set(headerAcceptEncoding, "identity")
	req.Header.Set(headerConnection, "keep-alive")
	req.Header.Set(headerCacheControl, "no-cache")
	d.log.Debug("requesting range", logger.Fields{"stream": d.stream, "range": rangeVal})

	resp, err := d.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errs.ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		if cr := resp.Header.Get(headerContentRange); cr != "" {
			if s, e, ok := parseContentRange(cr); ok && (s != start || e != end) {
				return 0, errs.Wrapf(errs.ErrDownloadFailed, "range %s answered with %q", rangeVal, cr)
			}
		}
	case resp.StatusCode == http.StatusOK && start == 0 && end == total-1:
	default:
		return 0, errs.Wrapf(errs.ErrDownloadFailed, "range %s: unexpected status %d", rangeVal, resp.StatusCode)
	}

	want := end - start + 1
	written, err := d.copyLimited(ctx, out, resp.Body, want)
	if err != nil {
		return written, fmt.Errorf("%w: range %s after %d bytes: %w", errs.ErrDownloadFailed, rangeVal, written, err)
	}
	if written != want {
		return written, errs.Wrapf(errs.ErrDownloadFailed, "range %s: short body, got %d of %d bytes", rangeVal, written, want)
	}
	var probe [1]byte
	if n, _ := resp.Body.Read(probe[:]); n > 0 {
		return written, errs.Wrapf(errs.ErrDownloadFailed, "range %s: body longer than %d bytes", rangeVal, want)
	}
	return written, nil
}

// copyLimited copies at most n bytes, waiting on the rate limiter per buffer.
func (d *Downloader) copyLimited(ctx context.Context, dst io.Writer, src io.Reader, n int64) (int64, error) {
	buf := make([]byte, copyBufferSizeBytes)
	limited := io.LimitReader(src, n)
	var written int64
	for {
		nr, rerr := limited.Read(buf)
		if nr > 0 {
			if d.limiter != nil {
				if err := d.limiter.WaitN(ctx, nr); err != nil {
					return written, err
				}
			}
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func (d *Downloader) emit(chunk int, s types.DownloadSession, chunkBytes int64, elapsed time.Duration) {
	p := types.Progress{
		Stage:      stageDownload,
		Stream:     d.stream,
		Chunk:      chunk,
		BytesDone:  s.BytesWritten,
		BytesTotal: s.TotalLength,
		Percent:    float64(s.BytesWritten) / float64(s.TotalLength) * 100,
		TotalMiB:   float64(s.TotalLength) / mebibyte,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		p.ThroughputMiBps = float64(chunkBytes) / mebibyte / secs
	}
	d.log.Debug(p.String(), logger.Fields{"stream": d.stream, "chunk": chunk})
	if d.ProgressFunc != nil {
		d.ProgressFunc(p)
	}
}

// parseContentRange reads "bytes START-END/TOTAL".
func parseContentRange(v string) (start, end int64, ok bool) {
	v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "bytes"))
	span, _, found := strings.Cut(v, "/")
	if !found {
		return 0, 0, false
	}
	a, b, found := strings.Cut(span, "-")
	if !found {
		return 0, 0, false
	}
	start, err1 := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	end, err2 := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return start, end, true
}
