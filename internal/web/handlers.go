package web

import (
	"net/http"

	"github.com/licensekit/edd-export/internal/export"
)

// handleExportTrigger is the single trigger endpoint. A request without a
// token starts a new export (subject to the already-exported guard); a
// request with a token is a continuation and runs one batch.
func (s *Server) handleExportTrigger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	res, err := s.service.HandleTrigger(r.Context(), export.TriggerRequest{
		Token:   q.Get(export.TokenParam),
		Offset:  q.Get(export.OffsetParam),
		Limit:   q.Get(export.LimitParam),
		SelfURL: triggerURL(r),
		Cookies: r.Cookies(),
		APIKey:  r.Header.Get("X-API-Key"),
	})
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	switch res.State {
	case export.StateStarted:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "started",
		})

	case export.StateAlreadyExported:
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "already_exported",
			"file":   s.service.FilePath(),
		})

	case export.StateIgnored:
		// Stale retry, expired session, or a forged token: all are
		// answered identically and reveal nothing.
		w.WriteHeader(http.StatusNoContent)

	case export.StateBatchContinued:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "batch_complete",
			"processed":   res.Processed,
			"next_offset": res.NextOffset,
		})

	case export.StateCompleted:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "export_complete",
			"processed": res.Processed,
		})
	}
}

// handleExportStatus reports the artifact and session state for operators.
func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status(r.Context()))
}

// handleHealth is the liveness endpoint; it also pings the database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// triggerURL reconstructs the inbound trigger URL (scheme, host, path)
// without its query string; continuations are addressed to it.
func triggerURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path
}
