package server

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	// --- Accounts ---
	if total, disabled, err := s.store.CountAccounts(); err == nil {
		fmt.Fprintln(w, "# HELP fleetdeck_accounts_total Managed accounts.")
		fmt.Fprintln(w, "# TYPE fleetdeck_accounts_total gauge")
		fmt.Fprintf(w, "fleetdeck_accounts_total %d\n", total)
		fmt.Fprintln(w, "# HELP fleetdeck_accounts_disabled Managed accounts currently disabled.")
		fmt.Fprintln(w, "# TYPE fleetdeck_accounts_disabled gauge")
		fmt.Fprintf(w, "fleetdeck_accounts_disabled %d\n", disabled)
	}

	// --- Vendor operations ---
	names, ops := s.opMetrics.Snapshot()
	fmt.Fprintln(w, "# HELP fleetdeck_vendor_ops_total Vendor operations attempted, by op.")
	fmt.Fprintln(w, "# TYPE fleetdeck_vendor_ops_total counter")
	for _, name := range names {
		fmt.Fprintf(w, "fleetdeck_vendor_ops_total{op=%q} %d\n", name, ops[name].Total)
	}
	fmt.Fprintln(w, "# HELP fleetdeck_vendor_op_failures_total Vendor operations that returned an error, by op.")
	fmt.Fprintln(w, "# TYPE fleetdeck_vendor_op_failures_total counter")
	for _, name := range names {
		fmt.Fprintf(w, "fleetdeck_vendor_op_failures_total{op=%q} %d\n", name, ops[name].Failed)
	}

	// --- Batch tasks ---
	var running, completed int
	for _, task := range s.tasks.list() {
		switch task.Status {
		case taskCompleted:
			completed++
		default:
			running++
		}
	}
	fmt.Fprintln(w, "# HELP fleetdeck_batch_tasks_running Batch tasks queued or running.")
	fmt.Fprintln(w, "# TYPE fleetdeck_batch_tasks_running gauge")
	fmt.Fprintf(w, "fleetdeck_batch_tasks_running %d\n", running)
	fmt.Fprintln(w, "# HELP fleetdeck_batch_tasks_completed Batch tasks finished since start.")
	fmt.Fprintln(w, "# TYPE fleetdeck_batch_tasks_completed counter")
	fmt.Fprintf(w, "fleetdeck_batch_tasks_completed %d\n", completed)

	// --- Audit ---
	if s.auditLog != nil {
		if seq, err := s.auditLog.LastSeq(); err == nil {
			fmt.Fprintln(w, "# HELP fleetdeck_audit_last_seq Sequence number of the newest audit entry.")
			fmt.Fprintln(w, "# TYPE fleetdeck_audit_last_seq gauge")
			fmt.Fprintf(w, "fleetdeck_audit_last_seq %d\n", seq)
		}
	}

	// --- Process ---
	fmt.Fprintln(w, "# HELP fleetdeck_uptime_seconds Seconds since the daemon started.")
	fmt.Fprintln(w, "# TYPE fleetdeck_uptime_seconds gauge")
	fmt.Fprintf(w, "fleetdeck_uptime_seconds %d\n", int64(time.Since(s.started).Seconds()))
	fmt.Fprintln(w, "# HELP fleetdeck_goroutines Current goroutine count.")
	fmt.Fprintln(w, "# TYPE fleetdeck_goroutines gauge")
	fmt.Fprintf(w, "fleetdeck_goroutines %d\n", runtime.NumGoroutine())
}
