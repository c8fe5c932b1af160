// Package stream talks to the Cloudflare Stream API, which hosts and
// transcodes every lesson video. Playback URLs can be built without API
// credentials; management calls need an account id and token.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.cloudflare.com/client/v4"

var (
	ErrNotConfigured = errors.New("stream: account id and token are required")
	ErrNotFound      = errors.New("stream: video not found")
)

// Asset states reported by Stream.
const (
	StatePendingUpload = "pendingupload"
	StateDownloading   = "downloading"
	StateQueued        = "queued"
	StateInProgress    = "inprogress"
	StateReady         = "ready"
	StateError         = "error"
)

type Config struct {
	AccountID    string
	Token        string
	CustomerCode string
	// APIBase overrides the Cloudflare API root, used by tests.
	APIBase string
}

type Client struct {
	config Config
	http   *http.Client
}

func New(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether management calls can be made.
func (c *Client) Configured() bool {
	return c != nil && c.config.AccountID != "" && c.config.Token != ""
}

type Status struct {
	State           string `json:"state"`
	PctComplete     string `json:"pctComplete,omitempty"`
	ErrorReasonCode string `json:"errorReasonCode,omitempty"`
	ErrorReasonText string `json:"errorReasonText,omitempty"`
}

type Video struct {
	UID           string         `json:"uid"`
	Thumbnail     string         `json:"thumbnail"`
	ReadyToStream bool           `json:"readyToStream"`
	Status        Status         `json:"status"`
	Meta          map[string]any `json:"meta"`
	Created       time.Time      `json:"created"`
	Modified      time.Time      `json:"modified"`
	Size          int64          `json:"size,omitempty"`
	Duration      float64        `json:"duration,omitempty"`
	Playback      struct {
		HLS  string `json:"hls,omitempty"`
		DASH string `json:"dash,omitempty"`
	} `json:"playback"`
}

// Ready reports whether the asset finished processing.
func (v *Video) Ready() bool {
	return v.ReadyToStream || v.Status.State == StateReady
}

// Name returns the "name" metadata Stream stores for the asset.
func (v *Video) Name() string {
	if name, ok := v.Meta["name"].(string); ok {
		return name
	}
	return ""
}

type DirectUpload struct {
	UID       string `json:"uid"`
	UploadURL string `json:"uploadURL"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Result  json.RawMessage `json:"result"`
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
}

func (c *Client) accountURL(path string) string {
	return fmt.Sprintf("%s/accounts/%s/stream%s", c.config.APIBase, url.PathEscape(c.config.AccountID), path)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal stream request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.accountURL(path), reader)
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stream %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read stream response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("stream returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	if !env.Success || resp.StatusCode >= 300 {
		return fmt.Errorf("stream returned status %d: %s", resp.StatusCode, joinErrors(env.Errors))
	}

	if out != nil && len(env.Result) > 0 && string(env.Result) != "null" {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode stream result: %w", err)
		}
	}
	return nil
}

func joinErrors(errs []apiError) string {
	if len(errs) == 0 {
		return "unknown error"
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// CreateDirectUpload reserves a video uid and returns a one-time URL the
// browser uploads the file to.
func (c *Client) CreateDirectUpload(ctx context.Context, name string, maxDurationSeconds int) (*DirectUpload, error) {
	body := map[string]any{
		"maxDurationSeconds": maxDurationSeconds,
		"meta":               map[string]string{"name": name},
	}
	var out DirectUpload
	if err := c.do(ctx, http.MethodPost, "/direct_upload", body, &out); err != nil {
		return nil, err
	}
	if out.UID == "" || out.UploadURL == "" {
		return nil, errors.New("stream: direct upload response missing uid or url")
	}
	return &out, nil
}

func (c *Client) GetVideo(ctx context.Context, uid string) (*Video, error) {
	var v Video
	if err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(uid), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) ListVideos(ctx context.Context) ([]Video, error) {
	var videos []Video
	if err := c.do(ctx, http.MethodGet, "", nil, &videos); err != nil {
		return nil, err
	}
	return videos, nil
}

// DeleteVideo removes the asset. Deleting an unknown uid is not an error.
func (c *Client) DeleteVideo(ctx context.Context, uid string) error {
	err := c.do(ctx, http.MethodDelete, "/"+url.PathEscape(uid), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

type Format string

const (
	FormatHLS    Format = "hls"
	FormatDASH   Format = "dash"
	FormatMP4    Format = "mp4"
	FormatIframe Format = "iframe"
)

// PlaybackURLs is the set of player sources exposed to the learning page.
type PlaybackURLs struct {
	HLS       string `json:"hls"`
	DASH      string `json:"dash"`
	MP4       string `json:"mp4"`
	Iframe    string `json:"iframe"`
	Thumbnail string `json:"thumbnail"`
}

func (c *Client) customerCode() string {
	if c.config.CustomerCode != "" {
		return c.config.CustomerCode
	}
	if len(c.config.AccountID) >= 8 {
		return c.config.AccountID[:8]
	}
	return ""
}

// PlaybackURL builds the delivery URL for a format. Without a customer code
// the account id prefix is used; without either, the shared videodelivery.net
// host.
func (c *Client) PlaybackURL(uid string, f Format) string {
	if code := c.customerCode(); code != "" {
		base := fmt.Sprintf("https://customer-%s.cloudflarestream.com/%s", code, uid)
		switch f {
		case FormatIframe:
			return base + "/iframe"
		case FormatDASH:
			return base + "/manifest/video.mpd"
		case FormatMP4:
			return base + "/downloads/default.mp4"
		}
		return base + "/manifest/video.m3u8"
	}

	base := "https://videodelivery.net/" + uid
	switch f {
	case FormatIframe:
		return base + "/iframe"
	case FormatDASH:
		return base + "/manifest/video.mpd"
	case FormatMP4:
		return base + "/mp4"
	}
	return base + "/manifest/video.m3u8"
}

func (c *Client) Playback(uid string) PlaybackURLs {
	return PlaybackURLs{
		HLS:       c.PlaybackURL(uid, FormatHLS),
		DASH:      c.PlaybackURL(uid, FormatDASH),
		MP4:       c.PlaybackURL(uid, FormatMP4),
		Iframe:    c.PlaybackURL(uid, FormatIframe),
		Thumbnail: ThumbnailURL(uid, ThumbnailOptions{}),
	}
}

type ThumbnailOptions struct {
	Time   string // "62s" or "1m2s"
	Width  int
	Height int
	Fit    string // crop, clip or scale
}

func ThumbnailURL(uid string, opts ThumbnailOptions) string {
	u := "https://videodelivery.net/" + uid + "/thumbnails/thumbnail.jpg"

	params := url.Values{}
	if opts.Time != "" {
		params.Set("time", opts.Time)
	}
	if opts.Width > 0 {
		params.Set("width", strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		params.Set("height", strconv.Itoa(opts.Height))
	}
	if opts.Fit != "" {
		params.Set("fit", opts.Fit)
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

var (
	deliveryURLPattern = regexp.MustCompile(`(?:videodelivery\.net|cloudflarestream\.com)/([a-f0-9]{32})`)
	uidPattern         = regexp.MustCompile(`^[a-f0-9]{32}$`)
)

// ExtractUID pulls the video uid out of a Stream delivery URL.
func ExtractUID(rawURL string) (string, bool) {
	m := deliveryURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func IsStreamUID(s string) bool {
	return uidPattern.MatchString(s)
}
