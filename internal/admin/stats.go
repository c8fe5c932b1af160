package admin

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/lingoreel/lingoreel/internal/httputil"
)

const (
	topBreakdownItems      = 5
	defaultDeliveriesLimit = 50
	maxDeliveriesLimit     = 200
)

type breakdownItem struct {
	Name       string  `json:"name"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type viewStats struct {
	Days         int             `json:"days"`
	Total        int64           `json:"total"`
	UniqueViews  int64           `json:"uniqueViews"`
	TopCountries []breakdownItem `json:"topCountries"`
	TopDevices   []breakdownItem `json:"topDevices"`
}

type statsResponse struct {
	Videos    map[string]int64 `json:"videos"`
	Users     map[string]int64 `json:"users"`
	Subtitles int64            `json:"subtitles"`
	WordCards int64            `json:"wordCards"`
	Views     viewStats        `json:"views"`
}

func parseRange(raw string) (int, bool) {
	switch raw {
	case "", "7d":
		return 7, true
	case "30d":
		return 30, true
	case "90d":
		return 90, true
	}
	return 0, false
}

// Stats serves the dashboard totals. Status maps always carry every known
// status plus "total" so the frontend can render zeros.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	days, ok := parseRange(r.URL.Query().Get("range"))
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "range must be one of 7d, 30d, 90d")
		return
	}
	ctx := r.Context()
	since := time.Now().UTC().AddDate(0, 0, -days)

	videos, err := h.countByStatus(ctx, `SELECT status, COUNT(*) FROM videos GROUP BY status`, "draft", "published")
	if err != nil {
		slog.Error("admin: count videos failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	users, err := h.countByStatus(ctx, `SELECT status, COUNT(*) FROM profiles GROUP BY status`, "pending", "approved", "suspended")
	if err != nil {
		slog.Error("admin: count users failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	resp := statsResponse{Videos: videos, Users: users, Views: viewStats{Days: days}}
	if err := h.db.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM subtitles), (SELECT COUNT(*) FROM word_cards)`,
	).Scan(&resp.Subtitles, &resp.WordCards); err != nil {
		slog.Error("admin: count content failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	if err := h.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT viewer_hash) FROM video_views WHERE created_at >= $1`, since,
	).Scan(&resp.Views.Total, &resp.Views.UniqueViews); err != nil {
		slog.Error("admin: count views failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	// Breakdowns are best effort; an empty list is better than a failed dashboard.
	resp.Views.TopCountries = h.breakdown(ctx, "country", since, resp.Views.Total)
	resp.Views.TopDevices = h.breakdown(ctx, "device", since, resp.Views.Total)

	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) countByStatus(ctx context.Context, query string, statuses ...string) (map[string]int64, error) {
	counts := make(map[string]int64, len(statuses)+1)
	for _, s := range statuses {
		counts[s] = 0
	}

	rows, err := h.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var total int64
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
		total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	counts["total"] = total
	return counts, nil
}

// breakdown groups recent views by a video_views column. column is never
// user input.
func (h *Handler) breakdown(ctx context.Context, column string, since time.Time, total int64) []breakdownItem {
	items := make([]breakdownItem, 0)
	rows, err := h.db.Query(ctx, fmt.Sprintf(
		`SELECT %[1]s, COUNT(*) AS cnt
		 FROM video_views WHERE created_at >= $1 AND %[1]s <> ''
		 GROUP BY %[1]s ORDER BY cnt DESC, %[1]s LIMIT $2`, column),
		since, topBreakdownItems,
	)
	if err != nil {
		slog.Warn("admin: view breakdown failed", "column", column, "error", err)
		return items
	}
	defer rows.Close()

	for rows.Next() {
		var item breakdownItem
		if err := rows.Scan(&item.Name, &item.Count); err != nil {
			continue
		}
		if total > 0 {
			item.Percentage = math.Round(float64(item.Count)/float64(total)*1000) / 10
		}
		items = append(items, item)
	}
	return items
}

// WebhookDeliveries lists the newest webhook attempts for troubleshooting.
func (h *Handler) WebhookDeliveries(w http.ResponseWriter, r *http.Request) {
	if h.deliveries == nil {
		httputil.WriteError(w, http.StatusNotFound, "webhooks are not configured")
		return
	}

	limit := defaultDeliveriesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = min(n, maxDeliveriesLimit)
	}

	deliveries, err := h.deliveries.RecentDeliveries(r.Context(), limit)
	if err != nil {
		slog.Error("admin: list webhook deliveries failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list webhook deliveries")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, deliveries)
}
