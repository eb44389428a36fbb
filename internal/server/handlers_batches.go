package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Op  string   `json:"op"`
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "PARSE_ERROR")
		return
	}

	task, err := s.tasks.start(body.Op, body.IDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID})
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tasks.list())
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	task, ok := s.tasks.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no such batch task", "NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, task)
}
