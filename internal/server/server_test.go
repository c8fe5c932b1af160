package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/lingoreel/lingoreel/internal/auth"
	"github.com/lingoreel/lingoreel/internal/server"
	"github.com/lingoreel/lingoreel/internal/video"
	"github.com/pashagolub/pgxmock/v4"
)

const (
	testSecret = "test-secret"
	testUserID = "550e8400-e29b-41d4-a716-446655440000"
)

// --- Mock types ---

type mockPinger struct{ err error }

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

type mockStorage struct{}

func (m *mockStorage) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}

func (m *mockStorage) GenerateDownloadURLWithDisposition(ctx context.Context, key string, filename string, expiry time.Duration) (string, error) {
	return "https://example.com/download", nil
}

func (m *mockStorage) DeleteObject(ctx context.Context, key string) error {
	return nil
}

// --- Helpers ---

func newServerWithoutDB() *server.Server {
	return server.New(server.Config{})
}

func newServerWithSPA(webFS fstest.MapFS) *server.Server {
	return server.New(server.Config{WebFS: webFS})
}

func newServerWithDB(t *testing.T) (*server.Server, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(func() { mock.Close() })

	srv := server.New(server.Config{
		DB:               mock,
		Pinger:           &mockPinger{err: nil},
		Storage:          &mockStorage{},
		JWTSecret:        testSecret,
		BaseURL:          "https://localhost:8080",
		S3PublicEndpoint: "https://storage.example.com",
	})
	return srv, mock
}

func testWebFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":     {Data: []byte("<html>app</html>")},
		"assets/app.js":  {Data: []byte("console.log('app')")},
		"assets/app.css": {Data: []byte("body{}")},
	}
}

func executeRequest(srv *server.Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func executeRequestWithBody(srv *server.Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func executeAuthenticated(t *testing.T, srv *server.Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateAccessToken(testSecret, testUserID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func expectProfile(mock pgxmock.PgxPoolIface, status, role string) {
	mock.ExpectQuery(`SELECT id, email, username, full_name, status, role, created_at, approved_at\s+FROM profiles WHERE id = \$1`).
		WithArgs(testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "username", "full_name", "status", "role", "created_at", "approved_at"}).
			AddRow(testUserID, "learner@example.com", (*string)(nil), (*string)(nil), status, role, time.Now(), (*time.Time)(nil)))
}

// --- Health Endpoint (no DB) ---

func TestHealthEndpointReturnsOK(t *testing.T) {
	srv := newServerWithoutDB()
	rec := executeRequest(srv, http.MethodGet, "/api/health")

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	expected := `{"status":"ok"}`
	if rec.Body.String() != expected {
		t.Errorf("expected body %q, got %q", expected, rec.Body.String())
	}
}

func TestHealthEndpointContentType(t *testing.T) {
	srv := newServerWithoutDB()
	rec := executeRequest(srv, http.MethodGet, "/api/health")

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type %q, got %q", "application/json", contentType)
	}
}

// --- Health Endpoint (with DB) ---

func TestHealthEndpointWithPingSuccess(t *testing.T) {
	srv := server.New(server.Config{
		Pinger: &mockPinger{err: nil},
	})
	rec := executeRequest(srv, http.MethodGet, "/api/health")

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestHealthEndpointWithPingFailure(t *testing.T) {
	srv := server.New(server.Config{
		Pinger: &mockPinger{err: errors.New("connection refused")},
	})
	rec := executeRequest(srv, http.MethodGet, "/api/health")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}

	expected := `{"status":"unhealthy","error":"database unreachable"}`
	if rec.Body.String() != expected {
		t.Errorf("expected body %q, got %q", expected, rec.Body.String())
	}
}

// --- Limits ---

func TestLimitsEndpoint(t *testing.T) {
	srv := server.New(server.Config{MaxSRTBytes: 1 << 20})
	rec := executeRequest(srv, http.MethodGet, "/api/limits")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body struct {
		Fields       map[string]int `json:"fields"`
		MaxSRTBytes  int64          `json:"maxSrtBytes"`
		Difficulties []string       `json:"difficulties"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.MaxSRTBytes != 1<<20 {
		t.Errorf("expected maxSrtBytes %d, got %d", 1<<20, body.MaxSRTBytes)
	}
	if body.Fields["title"] == 0 || body.Fields["word"] == 0 {
		t.Errorf("expected field limits, got %v", body.Fields)
	}
	if len(body.Difficulties) != 3 {
		t.Errorf("expected 3 difficulties, got %v", body.Difficulties)
	}
}

func TestLimitsEndpointDefaultsMaxSRTBytes(t *testing.T) {
	srv := newServerWithoutDB()
	rec := executeRequest(srv, http.MethodGet, "/api/limits")

	if !strings.Contains(rec.Body.String(), `"maxSrtBytes":`+jsonInt(video.DefaultMaxSRTBytes)) {
		t.Errorf("expected default maxSrtBytes, got %s", rec.Body.String())
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

// --- API docs ---

func TestDocsDisabledByDefault(t *testing.T) {
	srv := newServerWithoutDB()
	rec := executeRequest(srv, http.MethodGet, "/api/docs/openapi.yaml")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when docs are disabled, got %d", rec.Code)
	}
}

func TestDocsEnabled(t *testing.T) {
	srv := server.New(server.Config{EnableDocs: true})
	rec := executeRequest(srv, http.MethodGet, "/api/docs/openapi.yaml")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when docs are enabled, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "openapi:") {
		t.Error("expected the OpenAPI document")
	}
}

// --- Server with nil DB ---

func TestNilDBRoutesNotRegistered(t *testing.T) {
	srv := newServerWithoutDB()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/auth/register"},
		{http.MethodPost, "/api/auth/login"},
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/videos"},
		{http.MethodGet, "/api/videos/some-id/subtitles"},
		{http.MethodGet, "/api/collections"},
		{http.MethodGet, "/api/progress"},
		{http.MethodGet, "/api/admin/users"},
		{http.MethodPost, "/api/admin/videos"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rec := executeRequest(srv, route.method, route.path)
			if rec.Code != http.StatusNotFound {
				t.Errorf("expected 404 for %s %s without DB, got %d", route.method, route.path, rec.Code)
			}
		})
	}
}

// --- Server with DB: auth routes registered ---

func TestAuthRoutesRegisteredWithDB(t *testing.T) {
	srv, _ := newServerWithDB(t)

	rec := executeRequestWithBody(srv, http.MethodPost, "/api/auth/register", "{}")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty register body, got %d", rec.Code)
	}

	for _, path := range []string{"/api/auth/login", "/api/auth/refresh", "/api/auth/logout"} {
		rec := executeRequestWithBody(srv, http.MethodPost, path, "{}")
		if rec.Code == http.StatusNotFound || rec.Code == http.StatusMethodNotAllowed {
			t.Errorf("expected %s to be registered, got %d", path, rec.Code)
		}
	}
}

func TestAuthRoutesRateLimited(t *testing.T) {
	srv, _ := newServerWithDB(t)

	var lastCode int
	for i := 0; i < 20; i++ {
		rec := executeRequestWithBody(srv, http.MethodPost, "/api/auth/register", "{}")
		lastCode = rec.Code
		if lastCode == http.StatusTooManyRequests {
			return
		}
	}
	t.Errorf("expected 429 after many rapid requests, last status was %d", lastCode)
}

// --- Learner and admin routes ---

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv, _ := newServerWithDB(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/videos"},
		{http.MethodGet, "/api/videos/some-id"},
		{http.MethodPut, "/api/videos/some-id/progress"},
		{http.MethodGet, "/api/collections"},
		{http.MethodGet, "/api/progress"},
		{http.MethodGet, "/api/admin/users"},
		{http.MethodPost, "/api/admin/videos"},
		{http.MethodPatch, "/api/admin/subtitles/1"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rec := executeRequest(srv, route.method, route.path)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401 for unauthenticated %s %s, got %d", route.method, route.path, rec.Code)
			}
		})
	}
}

func TestPendingLearnerIsGated(t *testing.T) {
	srv, mock := newServerWithDB(t)
	expectProfile(mock, auth.StatusPending, auth.RoleUser)

	rec := executeAuthenticated(t, srv, http.MethodGet, "/api/videos")

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for pending learner, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "account pending approval") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestApprovedLearnerReachesCatalog(t *testing.T) {
	srv, mock := newServerWithDB(t)
	expectProfile(mock, auth.StatusApproved, auth.RoleUser)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM videos`).
		WillReturnError(errors.New("db down"))

	rec := executeAuthenticated(t, srv, http.MethodGet, "/api/videos")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected the catalog handler to run, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAdminRoutesRejectLearners(t *testing.T) {
	srv, mock := newServerWithDB(t)
	expectProfile(mock, auth.StatusApproved, auth.RoleUser)

	rec := executeAuthenticated(t, srv, http.MethodGet, "/api/admin/users")

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", rec.Code)
	}
}

func TestAdminRoutesReachHandlers(t *testing.T) {
	srv, mock := newServerWithDB(t)
	expectProfile(mock, auth.StatusApproved, auth.RoleAdmin)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM profiles p`).
		WithArgs("pending").
		WillReturnError(errors.New("db down"))

	rec := executeAuthenticated(t, srv, http.MethodGet, "/api/admin/users?status=pending")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected the admin handler to run, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// --- SPA File Server ---

func TestSPAServesExistingFiles(t *testing.T) {
	srv := newServerWithSPA(testWebFS())
	rec := executeRequest(srv, http.MethodGet, "/assets/app.js")

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for existing file, got %d", rec.Code)
	}

	expected := "console.log('app')"
	if rec.Body.String() != expected {
		t.Errorf("expected body %q, got %q", expected, rec.Body.String())
	}
}

func TestSPAFallbackToIndexForUnknownPaths(t *testing.T) {
	srv := newServerWithSPA(testWebFS())

	for _, path := range []string{"/", "/videos/abc", "/some/deeply/nested/route"} {
		rec := executeRequest(srv, http.MethodGet, path)
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200 for %s, got %d", path, rec.Code)
		}
		if rec.Body.String() != "<html>app</html>" {
			t.Errorf("expected index.html content for %s, got %q", path, rec.Body.String())
		}
	}
}

func TestSPAServesCorrectContentType(t *testing.T) {
	srv := newServerWithSPA(testWebFS())

	tests := map[string]string{
		"/assets/app.js":  "text/javascript; charset=utf-8",
		"/assets/app.css": "text/css; charset=utf-8",
	}
	for path, want := range tests {
		rec := executeRequest(srv, http.MethodGet, path)
		if got := rec.Header().Get("Content-Type"); got != want {
			t.Errorf("expected Content-Type %q for %s, got %q", want, path, got)
		}
	}
}

func TestSPACacheHeaders(t *testing.T) {
	srv := newServerWithSPA(testWebFS())

	if got := executeRequest(srv, http.MethodGet, "/assets/app.js").Header().Get("Cache-Control"); !strings.Contains(got, "immutable") {
		t.Errorf("expected hashed assets to be cached, got %q", got)
	}
	if got := executeRequest(srv, http.MethodGet, "/videos/abc").Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("expected index.html to be revalidated, got %q", got)
	}
}

func TestSPADoesNotServeIndexForUnknownAPIPaths(t *testing.T) {
	srv := newServerWithSPA(testWebFS())
	rec := executeRequest(srv, http.MethodGet, "/api/nope")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown API path, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"not found"`) {
		t.Errorf("expected JSON error, got %q", rec.Body.String())
	}
}

// --- Route Registration (no SPA FS) ---

func TestUnknownRouteReturns404WithoutSPA(t *testing.T) {
	srv := newServerWithoutDB()
	rec := executeRequest(srv, http.MethodGet, "/unknown")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown route without SPA, got %d", rec.Code)
	}
}

func TestHealthEndpointWrongMethodReturnsMethodNotAllowed(t *testing.T) {
	srv := newServerWithoutDB()
	rec := executeRequest(srv, http.MethodPost, "/api/health")

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST /api/health, got %d", rec.Code)
	}
}

func TestSPADoesNotInterceptHealthEndpoint(t *testing.T) {
	srv := newServerWithSPA(testWebFS())
	rec := executeRequest(srv, http.MethodGet, "/api/health")

	expected := `{"status":"ok"}`
	if rec.Body.String() != expected {
		t.Errorf("expected health JSON, got %q", rec.Body.String())
	}
}
