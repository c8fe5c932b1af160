package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

func authedRequest(method, path, userID string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func TestMe_ReturnsDecoratedProfile(t *testing.T) {
	handler, mock := newTestHandler(t)
	defer mock.Close()

	expectProfile(mock, "user-uuid-1", "alice@example.com", StatusApproved, RoleAdmin)

	rec := httptest.NewRecorder()
	handler.Me(rec, authedRequest(http.MethodGet, "/api/auth/me", "user-uuid-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var p Profile
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if !p.IsAdmin || !p.IsApproved || p.IsPending || p.StatusText != "administrator" {
		t.Errorf("unexpected derived flags: %+v", p)
	}
	if p.Username == nil || *p.Username != "alice" {
		t.Errorf("expected username alice, got %v", p.Username)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestMe_NotFound(t *testing.T) {
	handler, mock := newTestHandler(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, email, username`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	rec := httptest.NewRecorder()
	handler.Me(rec, authedRequest(http.MethodGet, "/api/auth/me", "ghost"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestRequireApproved(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		status     string
		role       string
		adminEmail string
		wantCode   int
		wantErr    string
	}{
		{"approved learner", "alice@example.com", StatusApproved, RoleUser, "", http.StatusOK, ""},
		{"pending learner", "alice@example.com", StatusPending, RoleUser, "", http.StatusForbidden, "account pending approval"},
		{"suspended learner", "alice@example.com", StatusSuspended, RoleUser, "", http.StatusForbidden, "account suspended"},
		{"pending admin email", "boss@example.com", StatusPending, RoleUser, "boss@example.com", http.StatusOK, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler, mock := newTestHandler(t)
			defer mock.Close()
			if tc.adminEmail != "" {
				handler.SetAdminEmails([]string{tc.adminEmail})
			}
			expectProfile(mock, "user-uuid-1", tc.email, tc.status, tc.role)

			var seen *Profile
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = ProfileFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			rec := httptest.NewRecorder()
			handler.RequireApproved(next).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/videos", "user-uuid-1"))

			if rec.Code != tc.wantCode {
				t.Fatalf("expected status %d, got %d: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
			if tc.wantErr != "" {
				if got := decodeErrorResponse(t, rec); got != tc.wantErr {
					t.Errorf("expected error %q, got %q", tc.wantErr, got)
				}
				return
			}
			if seen == nil || seen.ID != "user-uuid-1" {
				t.Errorf("expected profile in context, got %+v", seen)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		role     string
		wantCode int
	}{
		{"approved admin", StatusApproved, RoleAdmin, http.StatusOK},
		{"approved learner", StatusApproved, RoleUser, http.StatusForbidden},
		{"suspended admin", StatusSuspended, RoleAdmin, http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler, mock := newTestHandler(t)
			defer mock.Close()
			expectProfile(mock, "user-uuid-1", "alice@example.com", tc.status, tc.role)

			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			rec := httptest.NewRecorder()
			handler.RequireAdmin(next).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/admin/users", "user-uuid-1"))

			if rec.Code != tc.wantCode {
				t.Errorf("expected status %d, got %d: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRequireApproved_ThenAdminReusesProfile(t *testing.T) {
	handler, mock := newTestHandler(t)
	defer mock.Close()
	expectProfile(mock, "user-uuid-1", "alice@example.com", StatusApproved, RoleAdmin)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	rec := httptest.NewRecorder()
	handler.RequireApproved(handler.RequireAdmin(next)).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/admin/stats", "user-uuid-1"))

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected a single profile lookup: %v", err)
	}
}

func TestRequireApproved_DBError(t *testing.T) {
	handler, mock := newTestHandler(t)
	defer mock.Close()
	mock.ExpectQuery(`SELECT id, email, username`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrTxClosed)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { t.Error("next should not run") })
	rec := httptest.NewRecorder()
	handler.RequireApproved(next).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/videos", "user-uuid-1"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		status string
		admin  bool
		want   string
	}{
		{StatusPending, false, "pending review"},
		{StatusApproved, false, "approved"},
		{StatusSuspended, false, "suspended"},
		{"banned", false, "unknown"},
		{StatusPending, true, "administrator"},
	}
	for _, tt := range tests {
		if got := StatusText(tt.status, tt.admin); got != tt.want {
			t.Errorf("StatusText(%q, %v): expected %q, got %q", tt.status, tt.admin, tt.want, got)
		}
	}
}
