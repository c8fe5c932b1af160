package video

import (
	"context"
	"time"

	"github.com/lingoreel/lingoreel/internal/database"
	"github.com/lingoreel/lingoreel/internal/notify"
	"github.com/lingoreel/lingoreel/internal/playback"
	"github.com/lingoreel/lingoreel/internal/stream"
)

// ObjectStorage archives uploaded subtitle files.
type ObjectStorage interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GenerateDownloadURLWithDisposition(ctx context.Context, key string, filename string, expiry time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// StreamClient is the part of the Cloudflare Stream client the handlers use.
type StreamClient interface {
	Configured() bool
	CreateDirectUpload(ctx context.Context, name string, maxDurationSeconds int) (*stream.DirectUpload, error)
	GetVideo(ctx context.Context, uid string) (*stream.Video, error)
	DeleteVideo(ctx context.Context, uid string) error
	Playback(uid string) stream.PlaybackURLs
}

type GeoResolver interface {
	Country(ip string) string
}

const (
	DefaultMaxSRTBytes        = 5 << 20
	defaultMaxDurationSeconds = 3600
)

type Handler struct {
	db          database.DBTX
	storage     ObjectStorage
	stream      StreamClient
	geo         GeoResolver
	notifier    notify.Notifier
	saver       *playback.Debouncer
	maxSRTBytes int64
	// background runs fire-and-forget work such as view recording.
	background func(func())
}

func NewHandler(db database.DBTX, s ObjectStorage, sc StreamClient, maxSRTBytes int64) *Handler {
	if maxSRTBytes <= 0 {
		maxSRTBytes = DefaultMaxSRTBytes
	}
	return &Handler{
		db:          db,
		storage:     s,
		stream:      sc,
		maxSRTBytes: maxSRTBytes,
		background:  func(fn func()) { go fn() },
	}
}

func (h *Handler) SetGeoResolver(g GeoResolver) {
	h.geo = g
}

func (h *Handler) SetNotifier(n notify.Notifier) {
	h.notifier = n
}

// SetProgressSaver debounces progress writes. Without one every update is
// written immediately.
func (h *Handler) SetProgressSaver(d *playback.Debouncer) {
	h.saver = d
}

func (h *Handler) streamConfigured() bool {
	return h.stream != nil && h.stream.Configured()
}

func (h *Handler) playbackFor(uid string) *stream.PlaybackURLs {
	if uid == "" || h.stream == nil {
		return nil
	}
	p := h.stream.Playback(uid)
	return &p
}
