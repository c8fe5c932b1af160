package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lingoreel/lingoreel/internal/httputil"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusSuspended = "suspended"

	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Profile is the access-control record kept next to each account.
type Profile struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Username   *string    `json:"username"`
	FullName   *string    `json:"fullName"`
	Status     string     `json:"status"`
	Role       string     `json:"role"`
	CreatedAt  time.Time  `json:"createdAt"`
	ApprovedAt *time.Time `json:"approvedAt"`

	IsApproved bool   `json:"isApproved"`
	IsAdmin    bool   `json:"isAdmin"`
	IsPending  bool   `json:"isPending"`
	StatusText string `json:"statusText"`
}

// StatusText describes a profile state for display.
func StatusText(status string, admin bool) string {
	if admin {
		return "administrator"
	}
	switch status {
	case StatusPending:
		return "pending review"
	case StatusApproved:
		return "approved"
	case StatusSuspended:
		return "suspended"
	}
	return "unknown"
}

// Decorate fills the derived flags. Configured admin emails are approved
// administrators regardless of the stored status.
func (h *Handler) Decorate(p *Profile) {
	DecorateProfile(p, h.IsAdminEmail(p.Email))
}

// DecorateProfile fills the derived flags of p. A super admin is treated
// as approved whatever its stored status.
func DecorateProfile(p *Profile, superAdmin bool) {
	p.IsApproved = p.Status == StatusApproved || superAdmin
	p.IsAdmin = superAdmin || (p.Role == RoleAdmin && p.Status == StatusApproved)
	p.IsPending = p.Status == StatusPending && !superAdmin
	p.StatusText = StatusText(p.Status, p.IsAdmin)
}

func (h *Handler) loadProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := h.db.QueryRow(ctx,
		`SELECT id, email, username, full_name, status, role, created_at, approved_at
		 FROM profiles WHERE id = $1`, userID,
	).Scan(&p.ID, &p.Email, &p.Username, &p.FullName, &p.Status, &p.Role, &p.CreatedAt, &p.ApprovedAt)
	if err != nil {
		return nil, err
	}
	h.Decorate(&p)
	return &p, nil
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.loadProfile(r.Context(), UserIDFromContext(r.Context()))
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

// RequireApproved must run after Middleware.
func (h *Handler) RequireApproved(next http.Handler) http.Handler {
	return h.gate(next, false)
}

// RequireAdmin must run after Middleware.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return h.gate(next, true)
}

func (h *Handler) gate(next http.Handler, admin bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile := ProfileFromContext(r.Context())
		if profile == nil {
			p, err := h.loadProfile(r.Context(), UserIDFromContext(r.Context()))
			if errors.Is(err, pgx.ErrNoRows) {
				httputil.WriteError(w, http.StatusForbidden, "profile not found")
				return
			}
			if err != nil {
				slog.Error("auth: load profile failed", "user_id", UserIDFromContext(r.Context()), "error", err)
				httputil.WriteError(w, http.StatusInternalServerError, "failed to load profile")
				return
			}
			profile = p
		}

		if !profile.IsApproved {
			if profile.Status == StatusSuspended {
				httputil.WriteError(w, http.StatusForbidden, "account suspended")
				return
			}
			httputil.WriteError(w, http.StatusForbidden, "account pending approval")
			return
		}

		if admin && !profile.IsAdmin {
			httputil.WriteError(w, http.StatusForbidden, "admin access required")
			return
		}

		ctx := context.WithValue(r.Context(), profileKey, profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ProfileFromContext returns the profile loaded by RequireApproved or
// RequireAdmin, or nil.
func ProfileFromContext(ctx context.Context) *Profile {
	p, _ := ctx.Value(profileKey).(*Profile)
	return p
}
