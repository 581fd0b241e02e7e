// Package muxer combines a video-only and an audio-only file into one container.
package muxer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ytget/ytmux/errs"
	"github.com/ytget/ytmux/internal/logger"
	"github.com/ytget/ytmux/types"
)

// DefaultPath is the ffmpeg executable looked up in PATH.
const DefaultPath = "ffmpeg"

// maxStderr bounds how much ffmpeg output is kept for the error message.
const maxStderr = 4 << 10

// Muxer defines the interface for media muxing operations.
type Muxer interface {
	Available() bool
	Merge(ctx context.Context, pair types.MediaPair, meta types.Metadata) error
}

// FFmpegMuxer implements Muxer using the ffmpeg command line tool.
type FFmpegMuxer struct {
	Path string
	// KeepInputs leaves the intermediate files in place after a successful merge.
	KeepInputs bool

	log *logger.ComponentLogger
}

// NewFFmpegMuxer returns a new FFmpegMuxer.
// If path is empty, it looks for "ffmpeg" in PATH.
func NewFFmpegMuxer(path string) *FFmpegMuxer {
	if path == "" {
		path = DefaultPath
	}
	return &FFmpegMuxer{Path: path, log: logger.WithComponent(logger.ComponentMuxer)}
}

// WithLogger replaces the component logger.
func (f *FFmpegMuxer) WithLogger(l *logger.Logger) *FFmpegMuxer {
	if l != nil {
		f.log = l.WithComponent(logger.ComponentMuxer)
	}
	return f
}

// Available checks if ffmpeg is executable.
func (f *FFmpegMuxer) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

// Args returns the ffmpeg argument list for pair: first video stream of the
// first input, first audio stream of the second, both copied without re-encoding.
func Args(pair types.MediaPair, meta types.Metadata) []string {
	args := []string{
		"-y",
		"-i", pathArg(pair.VideoPath),
		"-i", pathArg(pair.AudioPath),
		"-c", "copy",
		"-map", "0:v:0",
		"-map", "1:a:0",
	}
	if meta.Title != "" {
		args = append(args, "-metadata", "title="+meta.Title)
	}
	return append(args, pathArg(pair.OutputPath))
}

// pathArg keeps a relative path starting with "-" from being read as an option.
func pathArg(p string) string {
	if strings.HasPrefix(p, "-") {
		return "." + string(filepath.Separator) + p
	}
	return p
}

// Merge runs ffmpeg synchronously. A stale output file is removed first. On
// a zero exit both inputs are deleted; otherwise they are kept and the error
// carries the tail of ffmpeg's stderr. ctx is only checked before ffmpeg
// starts; a running mux is never interrupted.
func (f *FFmpegMuxer) Merge(ctx context.Context, pair types.MediaPair, meta types.Metadata) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrMuxFailed, err)
	}
	if err := os.Remove(pair.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errs.Wrapf(errs.ErrMuxFailed, "remove stale output: %v", err)
	}

	args := Args(pair, meta)
	cmd := exec.Command(f.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.log.Info("muxing", logger.Fields{"video": pair.VideoPath, "audio": pair.AudioPath, "output": pair.OutputPath})
	f.log.Debug("ffmpeg command", logger.Fields{"path": f.Path, "args": strings.Join(args, " ")})
	start := time.Now()

	if err := cmd.Run(); err != nil {
		tail := stderrTail(stderr.Bytes())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			f.log.Error("ffmpeg failed", logger.Fields{"exit_code": exitErr.ExitCode(), "stderr": tail})
			return errs.Wrapf(errs.ErrMuxFailed, "ffmpeg exited with status %d: %s", exitErr.ExitCode(), tail)
		}
		return fmt.Errorf("%w: run %s: %w", errs.ErrMuxFailed, f.Path, err)
	}
	f.log.Info("mux finished", logger.Fields{"output": pair.OutputPath, "elapsed": time.Since(start).String()})

	if f.KeepInputs {
		return nil
	}
	for _, p := range []string{pair.VideoPath, pair.AudioPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.log.Warn("could not remove intermediate", logger.Fields{"path": p, "error": err.Error()})
		}
	}
	return nil
}

func stderrTail(b []byte) string {
	if len(b) > maxStderr {
		b = b[len(b)-maxStderr:]
	}
	return strings.TrimSpace(string(b))
}
