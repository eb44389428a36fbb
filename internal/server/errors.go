package server

import (
	"errors"
	"net/http"

	"github.com/user/fleetdeck/internal/identity"
	"github.com/user/fleetdeck/internal/store"
	"github.com/user/fleetdeck/internal/upstream"
)

// writeOpError renders a vendor-operation failure as a uniform JSON error.
// Client mistakes map to 4xx; everything that went wrong on the vendor side
// is a 502 so API consumers never confuse it with their own auth or input.
func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case store.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case store.IsInvalid(err), upstream.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case upstream.IsAuthError(err):
		writeError(w, http.StatusBadGateway, err.Error(), "AUTH_ERROR")
	case identity.IsRejected(err):
		writeError(w, http.StatusBadGateway, err.Error(), "IDENTITY_ERROR")
	case upstream.IsNetworkError(err):
		writeError(w, http.StatusBadGateway, err.Error(), "NETWORK_ERROR")
	case upstream.IsUpstreamError(err):
		writeError(w, http.StatusBadGateway, err.Error(), "UPSTREAM_ERROR")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

// errStatusCode extracts the vendor HTTP status behind an operation error,
// for audit entries. Zero when no response was received.
func errStatusCode(err error) int {
	var ue *upstream.UpstreamError
	if errors.As(err, &ue) {
		return ue.Status
	}
	if upstream.IsAuthError(err) {
		return http.StatusUnauthorized
	}
	return 0
}
