package audit

// Record is one encoded key/value pair bound for the engine.
type Record struct {
	Key []byte
	Val []byte
}

// Backend is the storage engine behind the audit log. Implementations must
// tolerate one writer goroutine alongside concurrent readers.
type Backend interface {
	// Append persists a batch atomically.
	Append(batch []Record) error
	// Get returns the value stored under key, reporting presence.
	Get(key []byte) ([]byte, bool, error)
	// Scan walks keys in [lower, upper), newest-first when reverse is set,
	// until fn returns false. Key and value slices are only valid for the
	// duration of the callback.
	Scan(lower, upper []byte, reverse bool, fn func(key, val []byte) bool) error
	Close() error
}
