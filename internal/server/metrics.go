package server

import (
	"sort"
	"sync"
)

// opStat is the lifetime counter pair for one vendor operation.
type opStat struct {
	Total  int64
	Failed int64
}

// opTracker counts vendor-facing operations by name for /metrics.
type opTracker struct {
	mu  sync.Mutex
	ops map[string]opStat
}

func newOpTracker() *opTracker {
	return &opTracker{ops: make(map[string]opStat)}
}

func (t *opTracker) Inc(op string, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.ops[op]
	st.Total++
	if failed {
		st.Failed++
	}
	t.ops[op] = st
}

// Snapshot returns op names in sorted order with their counters.
func (t *opTracker) Snapshot() ([]string, map[string]opStat) {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.ops))
	out := make(map[string]opStat, len(t.ops))
	for name, st := range t.ops {
		names = append(names, name)
		out[name] = st
	}
	sort.Strings(names)
	return names, out
}
