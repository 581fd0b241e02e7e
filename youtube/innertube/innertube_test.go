package innertube

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/ytget/ytmux/errs"
)

// mockYouTubeTransport intercepts player requests and returns a canned response
type mockYouTubeTransport struct {
	responseStatus int
	responseBody   string
	header         http.Header
	lastRequest    *http.Request
	lastBody       []byte
	calls          int
}

func (t *mockYouTubeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	t.lastRequest = req
	if req.Body != nil {
		t.lastBody, _ = io.ReadAll(req.Body)
	}
	header := t.header
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode: t.responseStatus,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(t.responseBody)),
		Request:    req,
	}, nil
}

const okPlayerJSON = `{
  "playabilityStatus": {"status": "OK"},
  "videoDetails": {"videoId": "abcdefghijk", "title": "Sample Title"},
  "streamingData": {"adaptiveFormats": [
    {"itag": 248, "mimeType": "video/webm; codecs=\"vp9\"", "url": "https://media.example/v?n=ABC", "contentLength": "20971520"},
    {"itag": 251, "mimeType": "audio/webm; codecs=\"opus\"", "url": "https://media.example/a?n=XYZ", "contentLength": "20971520"}
  ]}
}`

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		httpClient *http.Client
	}{
		{name: "Nil HTTP client", httpClient: nil},
		{name: "Custom HTTP client", httpClient: &http.Client{Timeout: 10 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.httpClient)
			if client.HTTPClient == nil {
				t.Fatal("Expected non-nil HTTPClient, got nil")
			}
			if client.clientName != DefaultClientName || client.clientVer != DefaultClientVersion {
				t.Errorf("unexpected default client %s/%s", client.clientName, client.clientVer)
			}
			if client.baseURL != DefaultBaseURL {
				t.Errorf("baseURL = %q", client.baseURL)
			}
		})
	}
}

func TestWithClientAndBaseURL(t *testing.T) {
	c := New(nil).WithClient(" ANDROID ", "").WithBaseURL("http://127.0.0.1:9999/")
	if c.clientName != "ANDROID" {
		t.Errorf("clientName = %q", c.clientName)
	}
	if c.clientVer != DefaultClientVersion {
		t.Errorf("empty version must keep default, got %q", c.clientVer)
	}
	if c.baseURL != "http://127.0.0.1:9999" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if New(nil).WithBaseURL("  ").baseURL != DefaultBaseURL {
		t.Error("blank base URL must be ignored")
	}
}

func TestGetPlayerResponse_RequestShape(t *testing.T) {
	tr := &mockYouTubeTransport{responseStatus: http.StatusOK, responseBody: okPlayerJSON}
	client := New(&http.Client{Transport: tr})

	pr, err := client.GetPlayerResponse(context.Background(), "abcdefghijk")
	if err != nil {
		t.Fatalf("GetPlayerResponse: %v", err)
	}
	if tr.calls != 1 {
		t.Errorf("expected exactly one request, got %d", tr.calls)
	}
	if tr.lastRequest.Method != http.MethodPost {
		t.Errorf("method = %s", tr.lastRequest.Method)
	}
	if got := tr.lastRequest.URL.String(); got != "https://www.youtube.com/youtubei/v1/player" {
		t.Errorf("url = %s", got)
	}
	if tr.lastRequest.URL.RawQuery != "" {
		t.Errorf("no key or query expected, got %q", tr.lastRequest.URL.RawQuery)
	}
	if got := tr.lastRequest.Header.Get("X-YouTube-Client-Name"); got != "1" {
		t.Errorf("client name header = %q", got)
	}

	var body struct {
		VideoID string `json:"videoId"`
		Context struct {
			Client struct {
				ClientName    string `json:"clientName"`
				ClientVersion string `json:"clientVersion"`
			} `json:"client"`
		} `json:"context"`
	}
	if err := json.Unmarshal(tr.lastBody, &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if body.VideoID != "abcdefghijk" {
		t.Errorf("videoId = %q", body.VideoID)
	}
	if body.Context.Client.ClientName != "WEB" || body.Context.Client.ClientVersion != "2.20230810.05.00" {
		t.Errorf("client = %+v", body.Context.Client)
	}

	if pr.VideoDetails.Title != "Sample Title" {
		t.Errorf("title = %q", pr.VideoDetails.Title)
	}
	if len(pr.StreamingData.AdaptiveFormats) != 2 {
		t.Fatalf("adaptive formats = %d", len(pr.StreamingData.AdaptiveFormats))
	}
	if pr.StreamingData.AdaptiveFormats[1].ContentLength != "20971520" {
		t.Errorf("contentLength = %q", pr.StreamingData.AdaptiveFormats[1].ContentLength)
	}
}

func TestGetPlayerResponse_AndroidContext(t *testing.T) {
	tr := &mockYouTubeTransport{responseStatus: http.StatusOK, responseBody: okPlayerJSON}
	client := New(&http.Client{Transport: tr}).WithClient("ANDROID", "19.09.37")

	if _, err := client.GetPlayerResponse(context.Background(), "abcdefghijk"); err != nil {
		t.Fatalf("GetPlayerResponse: %v", err)
	}
	if !strings.HasPrefix(tr.lastRequest.Header.Get("User-Agent"), "com.google.android.youtube/19.09.37") {
		t.Errorf("User-Agent = %q", tr.lastRequest.Header.Get("User-Agent"))
	}
	if !bytes.Contains(tr.lastBody, []byte(`"androidSdkVersion":30`)) {
		t.Errorf("android context missing: %s", tr.lastBody)
	}
}

func TestGetPlayerResponse_Encodings(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(okPlayerJSON))
	_ = gw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte(okPlayerJSON))
	_ = bw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
		wantErr  bool
	}{
		{name: "identity", body: []byte(okPlayerJSON)},
		{name: "gzip", encoding: "gzip", body: gz.Bytes()},
		{name: "brotli", encoding: "br", body: br.Bytes()},
		{name: "unknown", encoding: "zstd", body: []byte(okPlayerJSON), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := make(http.Header)
			if tt.encoding != "" {
				h.Set("Content-Encoding", tt.encoding)
			}
			tr := &mockYouTubeTransport{responseStatus: http.StatusOK, responseBody: string(tt.body), header: h}
			pr, err := New(&http.Client{Transport: tr}).GetPlayerResponse(context.Background(), "abcdefghijk")
			if tt.wantErr {
				if !errors.Is(err, errs.ErrMetadataUnavailable) {
					t.Fatalf("expected ErrMetadataUnavailable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetPlayerResponse: %v", err)
			}
			if pr.VideoDetails.Title != "Sample Title" {
				t.Errorf("title = %q", pr.VideoDetails.Title)
			}
		})
	}
}

func TestGetPlayerResponse_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCause error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "oops"},
		{name: "throttled", status: http.StatusTooManyRequests, wantCause: errs.ErrRateLimited},
		{name: "malformed json", status: http.StatusOK, body: "{not json"},
		{name: "private", status: http.StatusOK, body: `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"This video is private"}}`, wantCause: errs.ErrPrivate},
		{name: "age", status: http.StatusOK, body: `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"Sign in to confirm your age"}}`, wantCause: errs.ErrAgeRestricted},
		{name: "geo", status: http.StatusOK, body: `{"playabilityStatus":{"status":"ERROR","reason":"The uploader has not made this video available in your country"}}`, wantCause: errs.ErrGeoBlocked},
		{name: "unplayable", status: http.StatusOK, body: `{"playabilityStatus":{"status":"UNPLAYABLE"}}`, wantCause: errs.ErrVideoUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &mockYouTubeTransport{responseStatus: tt.status, responseBody: tt.body}
			_, err := New(&http.Client{Transport: tr}).GetPlayerResponse(context.Background(), "abcdefghijk")
			if !errors.Is(err, errs.ErrMetadataUnavailable) {
				t.Fatalf("expected ErrMetadataUnavailable, got %v", err)
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Errorf("expected cause %v, got %v", tt.wantCause, err)
			}
		})
	}
}

func TestGetPlayerResponse_HTTPServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/youtubei/v1/player" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, okPlayerJSON)
	}))
	defer server.Close()

	pr, err := New(server.Client()).WithBaseURL(server.URL).GetPlayerResponse(context.Background(), "abcdefghijk")
	if err != nil {
		t.Fatalf("GetPlayerResponse: %v", err)
	}
	if pr.VideoDetails.VideoID != "abcdefghijk" {
		t.Errorf("videoId = %q", pr.VideoDetails.VideoID)
	}
}

func TestClientCodeFromName(t *testing.T) {
	cases := map[string]string{"WEB": "1", "android": "3", "IOS": "5", "unknown": ""}
	for name, want := range cases {
		if got := clientCodeFromName(name); got != want {
			t.Errorf("clientCodeFromName(%q) = %q, want %q", name, got, want)
		}
	}
}
