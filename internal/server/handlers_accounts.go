package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/user/fleetdeck/internal/store"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ListAccountsFilter{Search: q.Get("search")}
	if v := q.Get("disabled"); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "disabled must be true or false", "VALIDATION_ERROR")
			return
		}
		f.Disabled = &disabled
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", "VALIDATION_ERROR")
			return
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset", "VALIDATION_ERROR")
			return
		}
		f.Offset = n
	}

	accounts, err := s.store.ListAccounts(f)
	if err != nil {
		writeOpError(w, err)
		return
	}
	if accounts == nil {
		accounts = []*store.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var p store.CreateAccountParams
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "PARSE_ERROR")
		return
	}
	acct, err := s.store.CreateAccount(p)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.store.GetAccount(chi.URLParam(r, "id"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// handleDeleteAccount removes the local row. With ?upstream=true the vendor
// account is deleted first and the row only goes away after the vendor
// confirmed.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if upstreamDelete, _ := strconv.ParseBool(r.URL.Query().Get("upstream")); upstreamDelete {
		res, err := s.ops.DeleteUser(r.Context(), id)
		if err != nil {
			s.recordOp(id, "delete_user", 0, err, "")
			writeOpError(w, err)
			return
		}
		s.tokens.Forget(id)
		s.recordOp(id, "delete_user", res.StatusCode, nil, "vendor account deleted")
		writeJSON(w, http.StatusOK, res)
		return
	}

	if err := s.store.DeleteAccount(id); err != nil {
		writeOpError(w, err)
		return
	}
	s.tokens.Forget(id)
	s.recordOp(id, "delete_account", 0, nil, "local row deleted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.tokens.EnsureValid(r.Context(), id, true); err != nil {
		s.recordOp(id, "refresh_token", 0, err, "")
		writeOpError(w, err)
		return
	}
	acct, err := s.store.GetAccount(id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	s.recordOp(id, "refresh_token", 0, nil, "forced refresh")
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	profile, err := s.ops.GetCurrentUser(r.Context(), id)
	if err != nil {
		s.recordOp(id, "get_user", 0, err, "")
		writeOpError(w, err)
		return
	}
	s.recordOp(id, "get_user", profile.StatusCode, nil, "")
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleGetPlanStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.ops.GetPlanStatus(r.Context(), id)
	if err != nil {
		s.recordOp(id, "get_plan_status", 0, err, "")
		writeOpError(w, err)
		return
	}
	s.recordOp(id, "get_plan_status", st.StatusCode, nil, "")
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetCreditEntries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := s.ops.GetTeamCreditEntries(r.Context(), id)
	if err != nil {
		s.recordOp(id, "get_credit_entries", 0, err, "")
		writeOpError(w, err)
		return
	}
	s.recordOp(id, "get_credit_entries", entries.StatusCode, nil, "")
	writeJSON(w, http.StatusOK, entries)
}
