package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/licensekit/edd-export/internal/config"
	"github.com/licensekit/edd-export/internal/export"
	"github.com/licensekit/edd-export/internal/session"
)

// staticSource serves a fixed set of fully resolvable licenses.
type staticSource struct {
	licenses []export.License
}

func (s *staticSource) FetchPage(_ context.Context, offset, limit int) ([]export.License, error) {
	if offset >= len(s.licenses) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.licenses) {
		end = len(s.licenses)
	}
	return s.licenses[offset:end], nil
}

func (s *staticSource) Customer(_ context.Context, id int64) (*export.Customer, error) {
	return &export.Customer{ID: id, Email: "buyer@example.com"}, nil
}

func (s *staticSource) Payment(_ context.Context, id int64) (*export.Payment, error) {
	return &export.Payment{ID: id}, nil
}

func (s *staticSource) CustomerAddress(_ context.Context, _ int64) (*export.Address, error) {
	return nil, nil
}

func (s *staticSource) DownloadExists(_ context.Context, _ int64) (bool, error) {
	return true, nil
}

// silentSpawner drops continuations; handler tests drive batches directly.
type silentSpawner struct{}

func (silentSpawner) Spawn(export.Continuation) {}

// fakePinger fails when down is set.
type fakePinger struct {
	down bool
}

func (p *fakePinger) Ping(context.Context) error {
	if p.down {
		return errors.New("connection refused")
	}
	return nil
}

type serverFixture struct {
	server   *Server
	sessions *session.MemoryStore
	db       *fakePinger
	dir      string
}

func newFixture(t *testing.T, licenses int, security config.SecurityConfig) *serverFixture {
	t.Helper()

	dir := t.TempDir()
	sessions := session.NewMemoryStore()

	lics := make([]export.License, licenses)
	for i := range lics {
		lics[i] = export.License{
			ID:         int64(i + 1),
			DownloadID: 1,
			CustomerID: 1,
			PaymentID:  1,
			Key:        "key",
			Created:    time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
			Lifetime:   true,
		}
	}

	service := export.NewService(export.Options{
		Source:     &staticSource{licenses: lics},
		Sessions:   sessions,
		Spawner:    silentSpawner{},
		Dir:        dir,
		FileName:   "edd-export.csv",
		BatchSize:  500,
		SessionTTL: time.Hour,
	})

	cfg := &config.Config{Security: security}
	db := &fakePinger{}
	return &serverFixture{
		server:   NewServer(service, db, cfg),
		sessions: sessions,
		db:       db,
		dir:      dir,
	}
}

func (f *serverFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestTriggerWithoutTokenStartsExport(t *testing.T) {
	f := newFixture(t, 3, config.SecurityConfig{})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/admin/export", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202\n%s", rec.Code, rec.Body.String())
	}
	if body := decodeJSON(t, rec); body["status"] != "started" {
		t.Errorf("status field = %v", body["status"])
	}

	// The session now holds the minted token.
	if _, err := f.sessions.Get(context.Background(), "active"); err != nil {
		t.Errorf("no session after start: %v", err)
	}
}

func TestTriggerContinuationRunsBatch(t *testing.T) {
	f := newFixture(t, 3, config.SecurityConfig{})
	ctx := context.Background()

	if err := f.sessions.Set(ctx, "active", "tok-1", time.Hour); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet,
		"/admin/export?token=tok-1&offset=0&limit=500", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["status"] != "export_complete" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["processed"] != float64(3) {
		t.Errorf("processed = %v, want 3", body["processed"])
	}

	if _, err := os.Stat(filepath.Join(f.dir, "edd-export.csv")); err != nil {
		t.Errorf("export file missing: %v", err)
	}
}

func TestTriggerBadTokenIsSilent(t *testing.T) {
	f := newFixture(t, 3, config.SecurityConfig{})

	if err := f.sessions.Set(context.Background(), "active", "tok-1", time.Hour); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/admin/export?token=forged", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
	if _, err := os.Stat(filepath.Join(f.dir, "edd-export.csv")); !os.IsNotExist(err) {
		t.Error("forged continuation touched the export file")
	}
}

func TestTriggerReportsExistingFile(t *testing.T) {
	f := newFixture(t, 3, config.SecurityConfig{})

	path := filepath.Join(f.dir, "edd-export.csv")
	if err := os.WriteFile(path, []byte("index\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/admin/export", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := decodeJSON(t, rec); body["status"] != "already_exported" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestExportStatus(t *testing.T) {
	f := newFixture(t, 0, config.SecurityConfig{})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/admin/export/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["file_exists"] != false || body["session_active"] != false {
		t.Errorf("idle status = %v", body)
	}

	if err := os.WriteFile(filepath.Join(f.dir, "edd-export.csv"), []byte("index\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.sessions.Set(context.Background(), "active", "tok-1", time.Hour); err != nil {
		t.Fatal(err)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/admin/export/status", nil))
	body = decodeJSON(t, rec)
	if body["file_exists"] != true || body["session_active"] != true {
		t.Errorf("active status = %v", body)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, 0, config.SecurityConfig{})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	f.db.down = true
	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when database is down", rec.Code)
	}
	if body := decodeJSON(t, rec); body["status"] != "degraded" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestAdminRequiresAPIKey(t *testing.T) {
	f := newFixture(t, 0, config.SecurityConfig{
		RequireAPIKey: true,
		APIKeys:       []string{"k1"},
	})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/admin/export/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("keyless status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/export/status", nil)
	req.Header.Set("X-API-Key", "wrong")
	if rec := f.do(t, req); rec.Code != http.StatusForbidden {
		t.Errorf("wrong-key status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/export/status", nil)
	req.Header.Set("X-API-Key", "k1")
	if rec := f.do(t, req); rec.Code != http.StatusOK {
		t.Errorf("valid-key status = %d, want 200", rec.Code)
	}

	// The health endpoint stays open for probes.
	if rec := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200 without key", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	f := newFixture(t, 0, config.SecurityConfig{})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}
