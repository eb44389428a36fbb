package audit

import (
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

type badgerBackend struct {
	db *badger.DB
}

// openBadger opens a Badger-backed audit store. Durability rides on the
// batched flush cadence rather than per-write fsync.
func openBadger(dir string) (*badgerBackend, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.SyncWrites = false
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger audit store: %w", err)
	}
	return &badgerBackend{db: db}, nil
}

func (b *badgerBackend) Close() error {
	return b.db.Close()
}

func (b *badgerBackend) Append(batch []Record) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, rec := range batch {
			if err := txn.Set(rec.Key, rec.Val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *badgerBackend) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (b *badgerBackend) Scan(lower, upper []byte, reverse bool, fn func(key, val []byte) bool) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := lower
		if reverse {
			// A reverse seek positions at the largest key <= target; the
			// upper bound is exclusive, so equal keys are skipped below.
			seek = upper
		}
		for it.Seek(seek); it.Valid(); it.Next() {
			k := it.Item().Key()
			if bytes.Compare(k, upper) >= 0 {
				if reverse {
					continue
				}
				break
			}
			if bytes.Compare(k, lower) < 0 {
				if reverse {
					break
				}
				continue
			}
			var keep bool
			err := it.Item().Value(func(v []byte) error {
				keep = fn(k, v)
				return nil
			})
			if err != nil {
				return err
			}
			if !keep {
				return nil
			}
		}
		return nil
	})
}
