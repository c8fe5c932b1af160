package notify

import (
	"context"
	"log/slog"
	"time"
)

// Event names shared by every notification channel.
const (
	UserRegistered    = "user.registered"
	UserApproved      = "user.approved"
	VideoPublished    = "video.published"
	SubtitlesUploaded = "subtitles.uploaded"
)

// Event is something admins or users should hear about. Data carries the
// channel-agnostic fields; each channel picks the ones it renders.
type Event struct {
	Name      string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func NewEvent(name string, data map[string]any) Event {
	return Event{Name: name, Timestamp: time.Now().UTC(), Data: data}
}

// String returns the value stored under key, or "" when absent.
func (e Event) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

var _ Notifier = (*Multi)(nil)

// Multi fans out events to all registered notifiers. A failing channel is
// logged and does not stop the others.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &Multi{notifiers: active}
}

func (m *Multi) Notify(ctx context.Context, event Event) error {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			slog.Error("multi-notifier: notification failed", "event", event.Name, "error", err)
		}
	}
	return nil
}

// Len reports how many channels are wired.
func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Go delivers the event in the background with its own deadline so request
// cancellation does not cut deliveries short.
func Go(n Notifier, event Event) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := n.Notify(ctx, event); err != nil {
			slog.Error("notify: delivery failed", "event", event.Name, "error", err)
		}
	}()
}
