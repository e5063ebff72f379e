package export

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExcludedCookie(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"tk_ai", true},
		{"tk_", true},
		{"mp_123_mixpanel", true},
		{"session", false},
		{"wordpress_logged_in_abc", false},
		{"atk_something", false},
	}
	for _, tt := range tests {
		if got := excludedCookie(tt.name); got != tt.want {
			t.Errorf("excludedCookie(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHTTPSpawnerRequestShape(t *testing.T) {
	type seen struct {
		query     map[string]string
		cookies   []string
		apiKey    string
		requestID string
	}
	got := make(chan seen, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := seen{
			query:     map[string]string{},
			apiKey:    r.Header.Get("X-API-Key"),
			requestID: r.Header.Get("X-Request-Id"),
		}
		for k := range r.URL.Query() {
			s.query[k] = r.URL.Query().Get(k)
		}
		for _, ck := range r.Cookies() {
			s.cookies = append(s.cookies, ck.Name)
		}
		got <- s
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sp := NewHTTPSpawner(2 * time.Second)
	sp.Spawn(Continuation{
		BaseURL: srv.URL + "/admin/export",
		Token:   "tok-1",
		Offset:  500,
		Limit:   500,
		Cookies: []*http.Cookie{
			{Name: "session", Value: "s1"},
			{Name: "tk_ai", Value: "tracker"},
			{Name: "mp_abc", Value: "tracker"},
		},
		APIKey: "k1",
	})

	select {
	case s := <-got:
		if s.query[TokenParam] != "tok-1" {
			t.Errorf("token = %q", s.query[TokenParam])
		}
		if s.query[OffsetParam] != "500" || s.query[LimitParam] != "500" {
			t.Errorf("cursor = offset %q limit %q", s.query[OffsetParam], s.query[LimitParam])
		}
		if len(s.cookies) != 1 || s.cookies[0] != "session" {
			t.Errorf("forwarded cookies = %v, want [session]", s.cookies)
		}
		if s.apiKey != "k1" {
			t.Errorf("X-API-Key = %q", s.apiKey)
		}
		if s.requestID == "" {
			t.Error("continuation carries no request ID")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("continuation never arrived")
	}
}

func TestHTTPSpawnerNoAPIKeyHeaderWhenEmpty(t *testing.T) {
	got := make(chan bool, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["X-Api-Key"]
		got <- present
	}))
	defer srv.Close()

	sp := NewHTTPSpawner(2 * time.Second)
	sp.Spawn(Continuation{BaseURL: srv.URL, Token: "t", Limit: 500})

	select {
	case present := <-got:
		if present {
			t.Error("X-API-Key header set on keyless continuation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("continuation never arrived")
	}
}

func TestHTTPSpawnerBadURLDoesNotPanic(t *testing.T) {
	sp := NewHTTPSpawner(time.Second)
	sp.Spawn(Continuation{BaseURL: "://not-a-url", Token: "t"})
	// Nothing to assert beyond the goroutine not blowing up; give it a
	// moment to run.
	time.Sleep(50 * time.Millisecond)
}
