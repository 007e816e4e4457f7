package database

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Locker runs a multi-step storage operation as one critical section.
type Locker interface {
	Lock(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error
}

// Store serializes every access to a shared connection pool.
// The underlying drivers are not assumed to be safe for interleaved
// multi-statement operations, so each Lock holds a mutex and a transaction
// for the whole callback. Callbacks must not call Lock again.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// NewStore creates a Store over db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Lock runs fn inside a transaction while holding the store lock.
func (s *Store) Lock(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RunInTx(ctx, s.db, fn)
}

// Close closes the connection pool after in-flight operations finish.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
