package types

import "fmt"

// AssetID identifies a remote asset. It is opaque and supplied by the caller.
type AssetID string

// StreamFormat describes one adaptive stream offered by the platform.
// URL is rewritten once it has been signed.
type StreamFormat struct {
	Itag          int
	MimeType      string
	URL           string
	ContentLength int64
	Bitrate       int
	Quality       string
}

// Challenge holds the raw source of the n-parameter transform. Source is the
// function body only; it is executed verbatim and never analysed.
type Challenge struct {
	PlayerURL string
	FuncName  string
	Param     string
	Source    string
}

// DownloadSession is the accounting state of one segmented download.
type DownloadSession struct {
	SourceURL       string
	DestinationPath string
	TotalLength     int64
	BytesWritten    int64
}

// Done reports whether every byte has been written.
func (s DownloadSession) Done() bool {
	return s.TotalLength > 0 && s.BytesWritten == s.TotalLength
}

// MediaPair is the input of a single mux run.
type MediaPair struct {
	VideoPath  string
	AudioPath  string
	OutputPath string
}

// Progress is a structured progress event emitted after each written chunk.
type Progress struct {
	Stage           string
	Stream          string
	Chunk           int
	BytesDone       int64
	BytesTotal      int64
	Percent         float64
	TotalMiB        float64
	ThroughputMiBps float64
}

// String renders the event as a human-readable progress line.
func (p Progress) String() string {
	return fmt.Sprintf("%.2f%% of %.2fMB at %.2fMB/s", p.Percent, p.TotalMiB, p.ThroughputMiBps)
}

// Metadata carries descriptive tags written into the muxed container.
type Metadata struct {
	Title string
}
