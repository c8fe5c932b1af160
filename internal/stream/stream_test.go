package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testUID = "0123456789abcdef0123456789abcdef"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{AccountID: "acct1234567", Token: "tok", APIBase: srv.URL})
}

func TestCreateDirectUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/accounts/acct1234567/stream/direct_upload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var body struct {
			MaxDurationSeconds int               `json:"maxDurationSeconds"`
			Meta               map[string]string `json:"meta"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.MaxDurationSeconds != 3600 || body.Meta["name"] != "Lesson 1" {
			t.Errorf("unexpected body %+v", body)
		}
		_, _ = w.Write([]byte(`{"success":true,"errors":[],"result":{"uid":"` + testUID + `","uploadURL":"https://upload.example/abc"}}`))
	})

	up, err := c.CreateDirectUpload(context.Background(), "Lesson 1", 3600)
	if err != nil {
		t.Fatalf("create direct upload: %v", err)
	}
	if up.UID != testUID || up.UploadURL != "https://upload.example/abc" {
		t.Errorf("unexpected upload %+v", up)
	}
}

func TestGetVideo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/"+testUID) {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"result":{"uid":"` + testUID + `","readyToStream":false,"status":{"state":"ready"},"meta":{"name":"Lesson"},"duration":92.5,"created":"2024-05-01T10:00:00Z","modified":"2024-05-01T10:05:00Z"}}`))
	})

	v, err := c.GetVideo(context.Background(), testUID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if !v.Ready() {
		t.Error("expected ready state to count as ready")
	}
	if v.Duration != 92.5 || v.Name() != "Lesson" {
		t.Errorf("unexpected video %+v", v)
	}
}

func TestGetVideo_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetVideo(context.Background(), testUID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListVideos_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"code":10000,"message":"Authentication error"}],"result":null}`))
	})

	_, err := c.ListVideos(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Authentication error") {
		t.Errorf("expected authentication error, got %v", err)
	}
}

func TestListVideos(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acct1234567/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"result":[{"uid":"a","status":{"state":"queued"}},{"uid":"b","readyToStream":true}]}`))
	})

	videos, err := c.ListVideos(context.Background())
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	if len(videos) != 2 || videos[0].Ready() || !videos[1].Ready() {
		t.Errorf("unexpected videos %+v", videos)
	}
}

func TestDeleteVideo_IgnoresMissing(t *testing.T) {
	var method string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusNotFound)
	})

	if err := c.DeleteVideo(context.Background(), testUID); err != nil {
		t.Errorf("expected missing video to be ignored, got %v", err)
	}
	if method != http.MethodDelete {
		t.Errorf("expected DELETE, got %s", method)
	}
}

func TestNotConfigured(t *testing.T) {
	c := New(Config{})
	if c.Configured() {
		t.Error("expected client without credentials to be unconfigured")
	}
	if _, err := c.GetVideo(context.Background(), testUID); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestPlaybackURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		f    Format
		want string
	}{
		{"customer code hls", Config{CustomerCode: "xyz"}, FormatHLS, "https://customer-xyz.cloudflarestream.com/" + testUID + "/manifest/video.m3u8"},
		{"customer code mp4", Config{CustomerCode: "xyz"}, FormatMP4, "https://customer-xyz.cloudflarestream.com/" + testUID + "/downloads/default.mp4"},
		{"account prefix iframe", Config{AccountID: "abcdefgh12345"}, FormatIframe, "https://customer-abcdefgh.cloudflarestream.com/" + testUID + "/iframe"},
		{"fallback dash", Config{}, FormatDASH, "https://videodelivery.net/" + testUID + "/manifest/video.mpd"},
		{"fallback mp4", Config{}, FormatMP4, "https://videodelivery.net/" + testUID + "/mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.cfg).PlaybackURL(testUID, tt.f); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestThumbnailURL(t *testing.T) {
	if got := ThumbnailURL(testUID, ThumbnailOptions{}); got != "https://videodelivery.net/"+testUID+"/thumbnails/thumbnail.jpg" {
		t.Errorf("unexpected plain thumbnail %q", got)
	}
	got := ThumbnailURL(testUID, ThumbnailOptions{Time: "2s", Width: 320, Fit: "crop"})
	if got != "https://videodelivery.net/"+testUID+"/thumbnails/thumbnail.jpg?fit=crop&time=2s&width=320" {
		t.Errorf("unexpected thumbnail %q", got)
	}
}

func TestExtractUID(t *testing.T) {
	uid, ok := ExtractUID("https://videodelivery.net/" + testUID + "/manifest/video.m3u8")
	if !ok || uid != testUID {
		t.Errorf("expected %s, got %q", testUID, uid)
	}
	if _, ok := ExtractUID("https://example.com/video.mp4"); ok {
		t.Error("expected non-stream url to be rejected")
	}
	if !IsStreamUID(testUID) || IsStreamUID("not-a-uid") {
		t.Error("IsStreamUID mismatch")
	}
}
