package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lingoreel/lingoreel/internal/auth"
	"github.com/lingoreel/lingoreel/internal/httputil"
	"github.com/lingoreel/lingoreel/internal/notify"
	"github.com/lingoreel/lingoreel/internal/validate"
)

const (
	defaultUserPageSize = 50
	maxUserPageSize     = 200
)

const profileColumns = `p.id, p.email, p.username, p.full_name, p.status, p.role, p.created_at, p.approved_at`

// ListUsers pages through profiles, optionally by status. The pending queue
// is served oldest first so the longest-waiting learners are reviewed first.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" {
		if msg := validate.UserStatus(status); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
	}
	p := httputil.ParsePagination(r, defaultUserPageSize, maxUserPageSize)

	order := "DESC"
	if status == auth.StatusPending {
		order = "ASC"
	}

	var total int
	if err := h.db.QueryRow(r.Context(),
		`SELECT COUNT(*) FROM profiles p WHERE ($1 = '' OR p.status = $1)`, status,
	).Scan(&total); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to count users")
		return
	}

	rows, err := h.db.Query(r.Context(),
		`SELECT `+profileColumns+` FROM profiles p
		 WHERE ($1 = '' OR p.status = $1)
		 ORDER BY p.created_at `+order+`
		 LIMIT $2 OFFSET $3`,
		status, p.Limit, p.Offset(),
	)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	defer rows.Close()

	users := make([]auth.Profile, 0)
	for rows.Next() {
		var u auth.Profile
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.Status, &u.Role, &u.CreatedAt, &u.ApprovedAt); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to scan user")
			return
		}
		h.decorate(&u)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPage(users, p, total))
}

func targetUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "user not found")
		return "", false
	}
	return id, true
}

// Approve lets a learner in and tells them by email.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	adminID := auth.UserIDFromContext(r.Context())
	userID, ok := targetUserID(w, r)
	if !ok {
		return
	}

	var email, name string
	err := h.db.QueryRow(r.Context(),
		`UPDATE profiles p SET status = 'approved', approved_at = now(), approved_by = $2
		 FROM users u
		 WHERE p.id = $1 AND u.id = p.id
		 RETURNING p.email, COALESCE(p.full_name, u.name)`,
		userID, adminID,
	).Scan(&email, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		slog.Error("admin: approve failed", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to approve user")
		return
	}

	slog.Info("admin: user approved", "user_id", userID, "approved_by", adminID)
	notify.Go(h.notifier, notify.NewEvent(notify.UserApproved, map[string]any{
		"userId": userID,
		"email":  email,
		"name":   name,
	}))
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": auth.StatusApproved})
}

// Reject suspends an account. Admins cannot suspend themselves.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	adminID := auth.UserIDFromContext(r.Context())
	userID, ok := targetUserID(w, r)
	if !ok {
		return
	}
	if userID == adminID {
		httputil.WriteError(w, http.StatusBadRequest, "cannot suspend yourself")
		return
	}

	tag, err := h.db.Exec(r.Context(),
		`UPDATE profiles SET status = 'suspended' WHERE id = $1`, userID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to suspend user")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "user not found")
		return
	}

	slog.Info("admin: user suspended", "user_id", userID, "suspended_by", adminID)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": auth.StatusSuspended})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	adminID := auth.UserIDFromContext(r.Context())
	userID, ok := targetUserID(w, r)
	if !ok {
		return
	}

	var req updateRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := validate.Role(req.Role); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if userID == adminID && req.Role != auth.RoleAdmin {
		httputil.WriteError(w, http.StatusBadRequest, "cannot change your own role")
		return
	}

	tag, err := h.db.Exec(r.Context(),
		`UPDATE profiles SET role = $2 WHERE id = $1`, userID, req.Role)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update role")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "user not found")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"role": req.Role})
}
