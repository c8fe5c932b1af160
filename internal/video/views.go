package video

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lingoreel/lingoreel/internal/httputil"
	"github.com/mssola/useragent"
)

// recordView stores one row per detail view for the admin dashboard.
func (h *Handler) recordView(r *http.Request, videoID, userID string) {
	ip := httputil.ClientIP(r)
	ua := r.UserAgent()

	h.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var country string
		if h.geo != nil {
			country = h.geo.Country(ip)
		}
		if _, err := h.db.Exec(ctx,
			`INSERT INTO video_views (video_id, user_id, viewer_hash, browser, device, country)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			videoID, nilIfEmpty(userID), viewerHash(ip, ua), parseBrowser(ua), parseDevice(ua), country,
		); err != nil {
			slog.Error("video: failed to record view", "video_id", videoID, "error", err)
		}
	})
}

func viewerHash(ip, userAgent string) string {
	h := sha256.Sum256([]byte(ip + "|" + userAgent))
	return fmt.Sprintf("%x", h[:8])
}

func parseBrowser(userAgent string) string {
	if userAgent == "" {
		return "Other"
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "Bot"
	}
	name, _ := ua.Browser()
	switch {
	case strings.Contains(userAgent, "Edg/"):
		return "Edge"
	case name == "":
		return "Other"
	}
	return name
}

func parseDevice(userAgent string) string {
	if userAgent == "" {
		return "Other"
	}
	ua := useragent.New(userAgent)
	switch {
	case ua.Bot():
		return "Bot"
	case strings.Contains(userAgent, "iPad"),
		strings.Contains(userAgent, "Android") && !strings.Contains(userAgent, "Mobile"):
		return "Tablet"
	case ua.Mobile():
		return "Mobile"
	}
	return "Desktop"
}
