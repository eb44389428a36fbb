package server

import (
	"net/http"
	"strconv"

	"github.com/user/fleetdeck/internal/audit"
)

// handleAuditLog returns recent audit entries, newest first. account_id
// narrows to one account; limit caps the result (default 100).
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		writeJSON(w, http.StatusOK, []audit.Entry{})
		return
	}

	q := audit.Query{AccountID: r.URL.Query().Get("account_id")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit", "VALIDATION_ERROR")
			return
		}
		q.Limit = n
	}

	entries, err := s.auditLog.Recent(q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
