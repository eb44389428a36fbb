package server

import (
	"github.com/user/fleetdeck/internal/audit"
)

// recordOp counts the operation for /metrics and, when an audit log is
// attached, appends an entry. statusCode is the vendor HTTP status when one
// was received; for failures it falls back to the status behind the error.
func (s *Server) recordOp(accountID, op string, statusCode int, opErr error, detail string) {
	s.opMetrics.Inc(op, opErr != nil)
	if s.auditLog == nil {
		return
	}
	e := audit.Entry{
		AccountID:  accountID,
		Op:         op,
		Success:    opErr == nil,
		StatusCode: statusCode,
		Detail:     detail,
	}
	if opErr != nil {
		e.Detail = opErr.Error()
		if e.StatusCode == 0 {
			e.StatusCode = errStatusCode(opErr)
		}
	}
	s.auditLog.Record(e)
}
