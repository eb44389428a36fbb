package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/user/fleetdeck/internal/store"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings()
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleUpdateSettings applies a JSON merge patch to the settings document.
// Schema violations come back as a field-level error list.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	patch, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error(), "PARSE_ERROR")
		return
	}
	if !json.Valid(patch) {
		writeError(w, http.StatusBadRequest, "invalid JSON", "PARSE_ERROR")
		return
	}

	settings, err := s.store.UpdateSettings(patch)
	if err != nil {
		if verr, ok := store.AsSettingsValidationError(err); ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  verr.Error(),
				"code":   "VALIDATION_ERROR",
				"issues": verr.Errors,
			})
			return
		}
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
