package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestToSafeFilename_Basics(t *testing.T) {
	got := ToSafeFilename("Hello:/\\*?\"<>| World", "webm")
	if got != "Hello_ World.webm" {
		t.Fatalf("got %q", got)
	}
}

func TestToSafeFilename_Defaults(t *testing.T) {
	got := ToSafeFilename("", "")
	if got != "video.webm" {
		t.Fatalf("got %q", got)
	}
	if got := ToSafeFilename("...", ".MKV"); got != "video.mkv" {
		t.Fatalf("got %q", got)
	}
}

func TestToSafeFilename_ControlChars(t *testing.T) {
	got := ToSafeFilename("Demo\n\tClip", "webm")
	if got != "DemoClip.webm" {
		t.Fatalf("got %q", got)
	}
}

func TestToSafeFilename_Long(t *testing.T) {
	title := strings.Repeat("é", 200)
	got := ToSafeFilename(title, "webm")
	if !utf8.ValidString(got) {
		t.Fatalf("truncation broke utf-8: %q", got)
	}
	if n := len(got); n > MaxBaseBytes+len(".webm") {
		t.Fatalf("too long: %d bytes", n)
	}
}

func TestToIntermediateName_FitsFilesystemLimit(t *testing.T) {
	const runID = "0192b8a4-7c1e-7d3f-9a2b-1c2d3e4f5a6b"
	for _, title := range []string{
		strings.Repeat("字", 100),
		strings.Repeat("😀", 100),
		strings.Repeat("a", 300),
		"a" + strings.Repeat("é", 150),
	} {
		got := ToIntermediateName(title, runID, "video", "webm")
		if !utf8.ValidString(got) {
			t.Fatalf("truncation broke utf-8: %q", got)
		}
		if len(got) > 255 {
			t.Errorf("%d bytes for a %d-rune title", len(got), utf8.RuneCountInString(title))
		}
		if !strings.HasSuffix(got, "."+runID+".video.webm") {
			t.Errorf("suffix lost: %q", got)
		}
	}
}

func TestTruncateBytes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "abc", n: 5, want: "abc"},
		{in: "abc", n: 2, want: "ab"},
		{in: "字字", n: 4, want: "字"},
		{in: "字字", n: 2, want: ""},
	}
	for _, tt := range tests {
		if got := truncateBytes(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateBytes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestToIntermediateName(t *testing.T) {
	got := ToIntermediateName("Demo", "0190", "video", "webm")
	if got != "Demo.0190.video.webm" {
		t.Fatalf("got %q", got)
	}
	if got := ToIntermediateName("a/b", "", "audio", ""); got != "a_b.audio.webm" {
		t.Fatalf("got %q", got)
	}
}
