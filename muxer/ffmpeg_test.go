package muxer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ytget/ytmux/errs"
	"github.com/ytget/ytmux/types"
)

// fakeFFmpeg writes an executable that records its arguments one per line,
// touches the last argument and exits with code.
func fakeFFmpeg(t *testing.T, code int) (path, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script ffmpeg stub needs a POSIX shell")
	}
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args.txt")
	script := "#!/bin/sh\n" +
		"for a in \"$@\"; do printf '%s\\n' \"$a\" >> '" + argsFile + "'; done\n" +
		"if [ " + strconv.Itoa(code) + " -ne 0 ]; then echo 'Invalid data found when processing input' >&2; exit " + strconv.Itoa(code) + "; fi\n" +
		"for a in \"$@\"; do last=\"$a\"; done\n" +
		": > \"$last\"\n"
	path = filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path, argsFile
}

func inputs(t *testing.T) types.MediaPair {
	t.Helper()
	dir := t.TempDir()
	pair := types.MediaPair{
		VideoPath:  filepath.Join(dir, "clip.run.video.webm"),
		AudioPath:  filepath.Join(dir, "clip.run.audio.webm"),
		OutputPath: filepath.Join(dir, "clip.webm"),
	}
	for _, p := range []string{pair.VideoPath, pair.AudioPath} {
		if err := os.WriteFile(p, []byte("media"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return pair
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func TestArgs(t *testing.T) {
	pair := types.MediaPair{VideoPath: "v.webm", AudioPath: "a.webm", OutputPath: "out.webm"}
	want := []string{"-y", "-i", "v.webm", "-i", "a.webm", "-c", "copy", "-map", "0:v:0", "-map", "1:a:0", "out.webm"}
	if got := Args(pair, types.Metadata{}); !reflect.DeepEqual(got, want) {
		t.Errorf("Args = %v", got)
	}
	got := Args(pair, types.Metadata{Title: "My Clip"})
	if got[len(got)-3] != "-metadata" || got[len(got)-2] != "title=My Clip" || got[len(got)-1] != "out.webm" {
		t.Errorf("Args with title = %v", got)
	}
}

func TestArgs_LeadingDash(t *testing.T) {
	pair := types.MediaPair{
		VideoPath:  "-LIVE- concert.run.video.webm",
		AudioPath:  "-LIVE- concert.run.audio.webm",
		OutputPath: "-LIVE- concert.webm",
	}
	got := Args(pair, types.Metadata{})
	sep := string(filepath.Separator)
	if got[2] != "."+sep+pair.VideoPath || got[4] != "."+sep+pair.AudioPath {
		t.Errorf("inputs = %q, %q", got[2], got[4])
	}
	if last := got[len(got)-1]; last != "."+sep+"-LIVE- concert.webm" {
		t.Errorf("output = %q", last)
	}

	abs := types.MediaPair{VideoPath: "/tmp/-v.webm", AudioPath: "/tmp/-a.webm", OutputPath: "/tmp/-o.webm"}
	if got := Args(abs, types.Metadata{}); got[len(got)-1] != "/tmp/-o.webm" {
		t.Errorf("absolute paths must be untouched: %v", got)
	}
}

func TestMerge_CancelledBeforeStart(t *testing.T) {
	bin, argsFile := fakeFFmpeg(t, 0)
	pair := inputs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFFmpegMuxer(bin).Merge(ctx, pair, types.Metadata{})
	if !errors.Is(err, errs.ErrMuxFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled mux, got %v", err)
	}
	if _, statErr := os.Stat(argsFile); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("ffmpeg must not start")
	}
}

func TestMerge_CancelWhileRunningCompletes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script ffmpeg stub needs a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), "ffmpeg")
	script := `#!/bin/sh
sleep 0.5
for a in "$@"; do last="$a"; done
: > "$last"
`
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	pair := inputs(t)

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(100*time.Millisecond, cancel)
	defer timer.Stop()

	if err := NewFFmpegMuxer(bin).Merge(ctx, pair, types.Metadata{}); err != nil {
		t.Fatalf("a started mux must run to completion: %v", err)
	}
	if _, err := os.Stat(pair.OutputPath); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestMerge_Success(t *testing.T) {
	bin, argsFile := fakeFFmpeg(t, 0)
	pair := inputs(t)
	if err := os.WriteFile(pair.OutputPath, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := NewFFmpegMuxer(bin).Merge(context.Background(), pair, types.Metadata{Title: "Clip"}); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	args := readArgs(t, argsFile)
	if args[1] != "-i" || args[2] != pair.VideoPath || args[4] != pair.AudioPath {
		t.Errorf("video must be the first input: %v", args)
	}
	for _, p := range []string{pair.VideoPath, pair.AudioPath} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("input %s should be removed, stat err = %v", p, err)
		}
	}
	if b, err := os.ReadFile(pair.OutputPath); err != nil || len(b) != 0 {
		t.Errorf("stale output should have been replaced: %q %v", b, err)
	}
}

func TestMerge_KeepInputs(t *testing.T) {
	bin, _ := fakeFFmpeg(t, 0)
	pair := inputs(t)
	m := NewFFmpegMuxer(bin)
	m.KeepInputs = true
	if err := m.Merge(context.Background(), pair, types.Metadata{}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if _, err := os.Stat(pair.VideoPath); err != nil {
		t.Errorf("video input should be kept: %v", err)
	}
}

func TestMerge_NonZeroExit(t *testing.T) {
	bin, _ := fakeFFmpeg(t, 1)
	pair := inputs(t)

	err := NewFFmpegMuxer(bin).Merge(context.Background(), pair, types.Metadata{})
	if !errors.Is(err, errs.ErrMuxFailed) {
		t.Fatalf("expected ErrMuxFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("stderr should be part of the error: %v", err)
	}
	for _, p := range []string{pair.VideoPath, pair.AudioPath} {
		if _, statErr := os.Stat(p); statErr != nil {
			t.Errorf("input %s must be kept on failure: %v", p, statErr)
		}
	}
}

func TestMerge_MissingBinary(t *testing.T) {
	m := NewFFmpegMuxer(filepath.Join(t.TempDir(), "no-such-ffmpeg"))
	if m.Available() {
		t.Fatal("missing binary reported as available")
	}
	if err := m.Merge(context.Background(), inputs(t), types.Metadata{}); !errors.Is(err, errs.ErrMuxFailed) {
		t.Fatalf("expected ErrMuxFailed, got %v", err)
	}
}

func TestNewFFmpegMuxer_Default(t *testing.T) {
	if NewFFmpegMuxer("").Path != DefaultPath {
		t.Error("empty path should default to ffmpeg")
	}
}
