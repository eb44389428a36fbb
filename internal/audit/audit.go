// Package audit keeps an append-only log of account operations in an
// embedded KV store. Writes are queued and flushed in batches by a
// background goroutine so request paths never block on fsync; the queue is
// bounded and drops under sustained pressure. Entries carry a monotonic
// sequence assigned at flush time and are indexed by account for filtered
// reads.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// Entry is one recorded operation.
type Entry struct {
	Seq        uint64    `json:"seq"`
	Time       time.Time `json:"time"`
	AccountID  string    `json:"account_id,omitempty"`
	Op         string    `json:"op"`
	Success    bool      `json:"success"`
	StatusCode int       `json:"status_code,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Query narrows a read. Zero values mean no filtering; Limit defaults to
// 100 entries.
type Query struct {
	AccountID string
	Limit     int
}

const defaultQueryLimit = 100

type pendingOp struct {
	entry Entry
	done  chan struct{} // non-nil for flush sentinels
}

// Log is the audit log handle. One background goroutine owns sequence
// assignment and all writes.
type Log struct {
	backend Backend
	nextSeq uint64 // read and advanced only by the flush loop

	pending chan pendingOp
	stop    chan struct{}
	done    chan struct{}
}

// Open opens the audit log under dataDir using the requested engine,
// "badger" (default) or "pebble".
func Open(dataDir, engine string) (*Log, error) {
	var (
		b   Backend
		err error
	)
	switch engine {
	case "", "badger":
		b, err = openBadger(filepath.Join(dataDir, "audit"))
	case "pebble":
		b, err = openPebble(filepath.Join(dataDir, "audit"))
	default:
		return nil, fmt.Errorf("unsupported audit engine %q (expected badger or pebble)", engine)
	}
	if err != nil {
		return nil, err
	}
	return newLog(b)
}

func newLog(b Backend) (*Log, error) {
	last, err := lastStoredSeq(b)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("recover audit sequence: %w", err)
	}
	l := &Log{
		backend: b,
		nextSeq: last + 1,
		pending: make(chan pendingOp, 1024),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.loop()
	return l, nil
}

// Record queues an entry. Seq is assigned at flush; a zero Time is stamped
// now. When the queue is full the entry is dropped.
func (l *Log) Record(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	select {
	case l.pending <- pendingOp{entry: e}:
	default:
		slog.Debug("audit queue full, dropping entry", "op", e.Op, "account_id", e.AccountID)
	}
}

// Flush blocks until every entry queued before the call is persisted.
func (l *Log) Flush() {
	done := make(chan struct{})
	l.pending <- pendingOp{done: done}
	<-done
}

// Close drains the queue, persists what remains and releases the backend.
func (l *Log) Close() error {
	close(l.stop)
	<-l.done
	return l.backend.Close()
}

// Recent returns matching entries newest-first. Queued writes are flushed
// first so readers observe their own operations.
func (l *Log) Recent(q Query) ([]Entry, error) {
	l.Flush()

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	out := make([]Entry, 0, limit)
	var scanErr error
	collect := func(val []byte) bool {
		var e Entry
		if err := json.Unmarshal(val, &e); err != nil {
			scanErr = fmt.Errorf("decode audit entry: %w", err)
			return false
		}
		out = append(out, e)
		return len(out) < limit
	}

	var err error
	if q.AccountID == "" {
		lower := entryPrefix()
		err = l.backend.Scan(lower, prefixUpperBound(lower), true, func(_, val []byte) bool {
			return collect(val)
		})
	} else {
		lower := accountPrefix(q.AccountID)
		err = l.backend.Scan(lower, prefixUpperBound(lower), true, func(key, _ []byte) bool {
			seq, ok := seqFromAccountKey(key)
			if !ok {
				return true
			}
			val, found, getErr := l.backend.Get(entryKey(seq))
			if getErr != nil {
				scanErr = getErr
				return false
			}
			if !found {
				return true
			}
			return collect(val)
		})
	}
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return out, nil
}

// LastSeq reports the highest persisted sequence number, zero when empty.
func (l *Log) LastSeq() (uint64, error) {
	l.Flush()
	return lastStoredSeq(l.backend)
}

func lastStoredSeq(b Backend) (uint64, error) {
	var last uint64
	lower := entryPrefix()
	err := b.Scan(lower, prefixUpperBound(lower), true, func(key, _ []byte) bool {
		last, _ = seqFromEntryKey(key)
		return false
	})
	return last, err
}

func (l *Log) loop() {
	defer close(l.done)

	batch := make([]pendingOp, 0, 256)
	for {
		select {
		case op := <-l.pending:
			batch = append(batch, op)
		case <-l.stop:
			l.drain(&batch)
			l.flushBatch(batch)
			return
		}

		// Non-blocking drain up to 256 ops.
		for len(batch) < 256 {
			select {
			case op := <-l.pending:
				batch = append(batch, op)
			default:
				goto flush
			}
		}

	flush:
		l.flushBatch(batch)
		batch = batch[:0]
	}
}

func (l *Log) drain(batch *[]pendingOp) {
	for {
		select {
		case op := <-l.pending:
			*batch = append(*batch, op)
		default:
			return
		}
	}
}

func (l *Log) flushBatch(batch []pendingOp) {
	if len(batch) == 0 {
		return
	}

	var recs []Record
	var flushSignals []chan struct{}
	seq := l.nextSeq
	for _, op := range batch {
		if op.done != nil {
			flushSignals = append(flushSignals, op.done)
			continue
		}
		e := op.entry
		e.Seq = seq
		val, err := json.Marshal(e)
		if err != nil {
			slog.Error("audit: encode entry", "error", err, "op", e.Op)
			continue
		}
		recs = append(recs, Record{Key: entryKey(seq), Val: val})
		if e.AccountID != "" {
			recs = append(recs, Record{Key: accountKey(e.AccountID, seq), Val: nil})
		}
		seq++
	}

	if len(recs) > 0 {
		if err := l.backend.Append(recs); err != nil {
			slog.Error("audit: append batch", "error", err, "entries", len(recs))
		} else {
			l.nextSeq = seq
		}
	}

	for _, ch := range flushSignals {
		close(ch)
	}
}
