// Package storage persists shopping lists, product history and share tokens.
// Queries use '?' placeholders and are rebound for the active driver.
package storage

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/shopbot/core/database"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

// Store bundles the repositories over one database handle or one transaction.
type Store struct {
	db *sqlx.DB

	Items   *ItemStore
	History *HistoryStore
	Tokens  *TokenStore
}

// New builds a Store over db.
func New(db *sqlx.DB) *Store {
	return newStore(db, db)
}

func newStore(db *sqlx.DB, q sqlx.ExtContext) *Store {
	return &Store{
		db:      db,
		Items:   &ItemStore{q: q},
		History: &HistoryStore{q: q},
		Tokens:  &TokenStore{q: q},
	}
}

// WithTx runs fn with a Store bound to a single transaction. Both writes made
// through tx persist, or neither does. Called on a transactional Store it
// reuses the current transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(newStore(nil, tx))
	})
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}
