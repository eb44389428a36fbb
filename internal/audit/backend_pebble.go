package audit

import (
	"fmt"

	"github.com/cockroachdb/pebble"
)

type pebbleBackend struct {
	db *pebble.DB
}

func openPebble(dir string) (*pebbleBackend, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		MemTableSize:          8 << 20, // 8MB
		L0CompactionThreshold: 8,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble audit store: %w", err)
	}
	return &pebbleBackend{db: db}, nil
}

func (b *pebbleBackend) Close() error {
	return b.db.Close()
}

func (b *pebbleBackend) Append(batch []Record) error {
	wb := b.db.NewBatch()
	defer func() { _ = wb.Close() }()
	for _, rec := range batch {
		if err := wb.Set(rec.Key, rec.Val, pebble.NoSync); err != nil {
			return err
		}
	}
	return wb.Commit(pebble.NoSync)
}

func (b *pebbleBackend) Get(key []byte) ([]byte, bool, error) {
	v, closer, err := b.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = closer.Close() }()
	out := append([]byte(nil), v...)
	return out, true, nil
}

func (b *pebbleBackend) Scan(lower, upper []byte, reverse bool, fn func(key, val []byte) bool) error {
	iter, err := b.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer func() { _ = iter.Close() }()

	advance := iter.Next
	ok := iter.First()
	if reverse {
		advance = iter.Prev
		ok = iter.Last()
	}
	for ; ok; ok = advance() {
		if !fn(iter.Key(), iter.Value()) {
			return nil
		}
	}
	return iter.Error()
}
