package innertube

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/ytget/ytmux/errs"
	"github.com/ytget/ytmux/internal/logger"
)

const (
	// DefaultBaseURL is the platform origin.
	DefaultBaseURL = "https://www.youtube.com"

	playerPath            = "/youtubei/v1/player"
	userAgentValue        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	headerContentTypeJSON = "application/json"
	maxResponseBytes      = 16 << 20

	// DefaultClientName and DefaultClientVersion identify the web player.
	DefaultClientName    = "WEB"
	DefaultClientVersion = "2.20230810.05.00"
)

// clientCodeFromName returns X-YouTube-Client-Name numeric code for known clients
func clientCodeFromName(name string) string {
	switch strings.ToUpper(name) {
	case "WEB":
		return "1"
	case "MWEB":
		return "2"
	case "ANDROID":
		return "3"
	case "IOS":
		return "5"
	case "TVHTML5":
		return "7"
	case "WEB_EMBEDDED_PLAYER":
		return "56"
	case "WEB_CREATOR":
		return "62"
	case "WEB_REMIX":
		return "67"
	case "TVHTML5_SIMPLY_EMBEDDED_PLAYER":
		return "85"
	default:
		return ""
	}
}

// Client for interacting with the YouTube InnerTube player endpoint.
type Client struct {
	HTTPClient *http.Client
	baseURL    string
	clientName string
	clientVer  string
	log        *logger.ComponentLogger
}

// New creates a new InnerTube client. A nil httpClient gets a 30s-timeout default.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		HTTPClient: httpClient,
		baseURL:    DefaultBaseURL,
		clientName: DefaultClientName,
		clientVer:  DefaultClientVersion,
		log:        logger.WithComponent(logger.ComponentInnerTube),
	}
}

// WithClient overrides InnerTube client name/version to shape playback URLs.
func (c *Client) WithClient(name, version string) *Client {
	if strings.TrimSpace(name) != "" {
		c.clientName = strings.TrimSpace(name)
	}
	if strings.TrimSpace(version) != "" {
		c.clientVer = strings.TrimSpace(version)
	}
	return c
}

// WithBaseURL points the client at another origin (tests, mirrors).
func (c *Client) WithBaseURL(base string) *Client {
	if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
		c.baseURL = base
	}
	return c
}

// WithLogger replaces the component logger.
func (c *Client) WithLogger(l *logger.Logger) *Client {
	if l != nil {
		c.log = l.WithComponent(logger.ComponentInnerTube)
	}
	return c
}

// AdaptiveFormat is one entry of streamingData.adaptiveFormats.
type AdaptiveFormat struct {
	Itag            int    `json:"itag"`
	URL             string `json:"url"`
	MimeType        string `json:"mimeType"`
	Bitrate         int    `json:"bitrate"`
	QualityLabel    string `json:"qualityLabel"`
	AudioQuality    string `json:"audioQuality"`
	ContentLength   string `json:"contentLength"`
	SignatureCipher string `json:"signatureCipher"`
}

// PlayerResponse represents a response from the InnerTube /player endpoint.
type PlayerResponse struct {
	StreamingData struct {
		AdaptiveFormats []AdaptiveFormat `json:"adaptiveFormats"`
	} `json:"streamingData"`
	VideoDetails struct {
		VideoID string `json:"videoId"`
		Title   string `json:"title"`
		Author  string `json:"author"`
	} `json:"videoDetails"`
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

func (c *Client) requestBody(videoID string) ([]byte, string, error) {
	clientMap := map[string]any{
		"clientName":    c.clientName,
		"clientVersion": c.clientVer,
		"hl":            "en",
	}
	ua := userAgentValue
	if strings.EqualFold(c.clientName, "ANDROID") {
		clientMap["androidSdkVersion"] = 30
		clientMap["osName"] = "Android"
		clientMap["osVersion"] = "11"
		ua = "com.google.android.youtube/" + c.clientVer + " (Linux; U; Android 11) gzip"
		clientMap["userAgent"] = ua
	}
	body, err := json.Marshal(map[string]any{
		"context": map[string]any{
			"client": clientMap,
		},
		"videoId": videoID,
	})
	return body, ua, err
}

// GetPlayerResponse fetches the player document for videoID with a single
// POST. Any failure, including a non-playable status, is reported as
// errs.ErrMetadataUnavailable.
func (c *Client) GetPlayerResponse(ctx context.Context, videoID string) (*PlayerResponse, error) {
	body, ua, err := c.requestBody(videoID)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrMetadataUnavailable, "encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+playerPath, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrapf(errs.ErrMetadataUnavailable, "build request: %v", err)
	}
	req.Header.Set("Content-Type", headerContentTypeJSON)
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Referer", c.baseURL+"/")
	req.Header.Set("Origin", c.baseURL)
	if code := clientCodeFromName(c.clientName); code != "" {
		req.Header.Set("X-YouTube-Client-Name", code)
	}
	req.Header.Set("X-YouTube-Client-Version", c.clientVer)

	c.log.Debug("requesting player response", logger.Fields{"video_id": videoID, "client": c.clientName, "version": c.clientVer})
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrMetadataUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		cause := fmt.Errorf("player endpoint status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			cause = errs.ErrRateLimited
		}
		return nil, fmt.Errorf("%w: %w", errs.ErrMetadataUnavailable, cause)
	}

	raw, err := readDecoded(resp)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrMetadataUnavailable, "read response: %v", err)
	}
	c.log.Trace("player response body", logger.Fields{"bytes": len(raw)})

	var pr PlayerResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, errs.Wrapf(errs.ErrMetadataUnavailable, "parse response: %v", err)
	}
	if err := CheckPlayability(&pr); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrMetadataUnavailable, err)
	}
	c.log.Info("player response received", logger.Fields{"title": pr.VideoDetails.Title, "adaptive_formats": len(pr.StreamingData.AdaptiveFormats)})
	return &pr, nil
}

// readDecoded reads the body honouring Content-Encoding. The transport's
// transparent gzip is disabled once Accept-Encoding is set explicitly.
func readDecoded(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %v", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "bzip2":
		reader = bzip2.NewReader(resp.Body)
	case "", "identity":
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
	return io.ReadAll(io.LimitReader(reader, maxResponseBytes))
}

// CheckPlayability maps a non-OK playability status to a cause error.
func CheckPlayability(pr *PlayerResponse) error {
	status := strings.ToUpper(pr.PlayabilityStatus.Status)
	reason := strings.ToLower(pr.PlayabilityStatus.Reason)
	switch status {
	case "", "OK":
		return nil
	case "ERROR":
		if strings.Contains(reason, "geograph") || strings.Contains(reason, "available in your country") {
			return errs.ErrGeoBlocked
		}
		if strings.Contains(reason, "rate limit") || strings.Contains(reason, "quota") {
			return errs.ErrRateLimited
		}
		return errs.ErrVideoUnavailable
	case "LOGIN_REQUIRED":
		if strings.Contains(reason, "private") {
			return errs.ErrPrivate
		}
		return errs.ErrAgeRestricted
	case "UNPLAYABLE":
		if strings.Contains(reason, "private") {
			return errs.ErrPrivate
		}
		return errs.ErrVideoUnavailable
	default:
		return fmt.Errorf("%w: status %s", errs.ErrVideoUnavailable, status)
	}
}
