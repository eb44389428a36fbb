package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/user/fleetdeck/internal/upstream"
)

func (s *Server) handleUpdateSeats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		SeatCount int `json:"seat_count"`
		Attempts  int `json:"attempts"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "PARSE_ERROR")
		return
	}

	res, err := s.ops.UpdateSeats(r.Context(), id, body.SeatCount, body.Attempts)
	if err != nil {
		s.recordOp(id, "update_seats", 0, err, "")
		writeOpError(w, err)
		return
	}
	detail := fmt.Sprintf("seat_count=%d success=%t", body.SeatCount, res.Success)
	s.recordOp(id, "update_seats", lastAttemptStatus(res), nil, detail)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResetCredits(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		SeatCount int `json:"seat_count"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON", "PARSE_ERROR")
			return
		}
	}

	res, err := s.ops.ResetCredits(r.Context(), id, body.SeatCount)
	if err != nil {
		s.recordOp(id, "reset_credits", 0, err, "")
		writeOpError(w, err)
		return
	}
	detail := fmt.Sprintf("seat_count_used=%d success=%t", res.SeatCountUsed, res.Update.Success)
	s.recordOp(id, "reset_credits", lastAttemptStatus(res.Update), nil, detail)
	writeJSON(w, http.StatusOK, res)
}

// lastAttemptStatus is the vendor status of the final seat update attempt.
func lastAttemptStatus(res *upstream.SeatUpdateResult) int {
	if res == nil || len(res.Attempts) == 0 {
		return 0
	}
	return res.Attempts[len(res.Attempts)-1].StatusCode
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var change upstream.PlanChange
	if err := decodeJSON(r, &change); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "PARSE_ERROR")
		return
	}

	res, err := s.ops.UpdatePlan(r.Context(), id, change)
	if err != nil {
		s.recordOp(id, "update_plan", 0, err, "")
		writeOpError(w, err)
		return
	}
	s.recordOp(id, "update_plan", res.StatusCode, nil, "tier="+change.Tier)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelPlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON", "PARSE_ERROR")
			return
		}
	}

	res, err := s.ops.CancelPlan(r.Context(), id, body.Reason)
	if err != nil {
		s.recordOp(id, "cancel_plan", 0, err, "")
		writeOpError(w, err)
		return
	}
	s.recordOp(id, "cancel_plan", res.StatusCode, nil, "")
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResumePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.ops.ResumePlan(r.Context(), id)
	if err != nil {
		s.recordOp(id, "resume_plan", 0, err, "")
		writeOpError(w, err)
		return
	}
	s.recordOp(id, "resume_plan", res.StatusCode, nil, "")
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubscribePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var params upstream.SubscribeParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "PARSE_ERROR")
		return
	}

	res, err := s.ops.SubscribeToPlan(r.Context(), id, params)
	if err != nil {
		s.recordOp(id, "subscribe_plan", 0, err, "")
		writeOpError(w, err)
		return
	}
	s.recordOp(id, "subscribe_plan", res.StatusCode, nil, "tier="+params.Tier)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpsertControls(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var controls upstream.OrgControls
	if err := decodeJSON(r, &controls); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "PARSE_ERROR")
		return
	}

	res, err := s.ops.UpsertTeamOrgControls(r.Context(), id, controls)
	if err != nil {
		s.recordOp(id, "upsert_controls", 0, err, "")
		writeOpError(w, err)
		return
	}
	s.recordOp(id, "upsert_controls", res.StatusCode, nil, "team_id="+controls.TeamID)
	writeJSON(w, http.StatusOK, res)
}

// handleGetModels serves the model catalog for one surface. The agent
// catalog is the default; ?surface=command selects the command one.
func (s *Server) handleGetModels(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	surface := r.URL.Query().Get("surface")

	var (
		res *upstream.ModelList
		err error
	)
	switch surface {
	case "", "cascade":
		surface = "cascade"
		res, err = s.ops.GetCascadeModels(r.Context(), id)
	case "command":
		res, err = s.ops.GetCommandModels(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown surface %q", surface), "VALIDATION_ERROR")
		return
	}
	if err != nil {
		s.recordOp(id, "get_models", 0, err, "")
		writeOpError(w, err)
		return
	}
	s.recordOp(id, "get_models", res.StatusCode, nil, "surface="+surface)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleOneTimeAuthToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.ops.GetOneTimeAuthToken(r.Context(), id)
	if err != nil {
		s.recordOp(id, "one_time_token", 0, err, "")
		writeOpError(w, err)
		return
	}
	s.recordOp(id, "one_time_token", res.StatusCode, nil, "")
	writeJSON(w, http.StatusOK, res)
}
