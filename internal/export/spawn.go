package export

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Continuation describes the follow-up trigger request that advances the
// export by one batch.
type Continuation struct {
	// BaseURL is the trigger endpoint, without cursor parameters.
	BaseURL string

	Token  string
	Offset int
	Limit  int

	// Cookies and APIKey from the originating request, forwarded so the
	// continuation executes under the same access rights.
	Cookies []*http.Cookie
	APIKey  string
}

// Spawner issues detached continuation requests. Implementations must not
// block the caller on the outcome: delivery is fire-and-forget, with no
// confirmation and no retry.
type Spawner interface {
	Spawn(c Continuation)
}

// HTTPSpawner fires continuations as real HTTP GETs against the trigger
// endpoint. The call targets this same service, usually over a loopback
// address whose certificate would not verify, so TLS verification is off.
type HTTPSpawner struct {
	client *http.Client
}

// NewHTTPSpawner creates a spawner with the given per-call timeout. The
// timeout only bounds how long the goroutine lingers; an elapsed timeout is
// not an error worth surfacing.
func NewHTTPSpawner(timeout time.Duration) *HTTPSpawner {
	return &HTTPSpawner{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

// Spawn implements Spawner. The request runs in its own goroutine and the
// response, if any arrives, is discarded.
func (s *HTTPSpawner) Spawn(c Continuation) {
	go func() {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			slog.Warn("self-call: bad trigger URL", "url", c.BaseURL, "error", err)
			return
		}
		q := u.Query()
		q.Set(TokenParam, c.Token)
		q.Set(OffsetParam, strconv.Itoa(c.Offset))
		q.Set(LimitParam, strconv.Itoa(c.Limit))
		u.RawQuery = q.Encode()

		req, err := http.NewRequest(http.MethodGet, u.String(), nil)
		if err != nil {
			slog.Warn("self-call: build request", "error", err)
			return
		}
		for _, ck := range c.Cookies {
			if excludedCookie(ck.Name) {
				continue
			}
			req.AddCookie(ck)
		}
		if c.APIKey != "" {
			req.Header.Set("X-API-Key", c.APIKey)
		}
		// A fresh request ID per continuation; the server's RequestID
		// middleware picks it up, so each batch is traceable in the logs.
		req.Header.Set("X-Request-Id", uuid.NewString())

		resp, err := s.client.Do(req)
		if err != nil {
			// Expected for a fire-and-forget call with a short
			// timeout; the batch keeps running server-side.
			slog.Debug("self-call: no response", "offset", c.Offset, "error", err)
			return
		}
		resp.Body.Close()
	}()
}

// excludedCookie reports whether a cookie is an analytics/tracking cookie
// that must not be forwarded on the continuation.
func excludedCookie(name string) bool {
	return strings.HasPrefix(name, "tk_") || strings.HasPrefix(name, "mp_")
}
