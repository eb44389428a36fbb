package store

import (
	"database/sql"

	"github.com/user/fleetdeck/internal/vault"
)

// Store is the data access layer for accounts and settings. Secrets pass
// through the vault on the way in and out of SQLite.
type Store struct {
	db    *DB
	vault *vault.Vault
}

// New creates a Store over an open database and vault.
func New(db *DB, v *vault.Vault) *Store {
	return &Store{db: db, vault: v}
}

// ReadDB returns the read database connection for ad-hoc queries.
func (s *Store) ReadDB() *sql.DB {
	return s.db.Read
}
