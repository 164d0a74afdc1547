// Package repository implements the PostgreSQL storage for the billing
// core: accounts, the tier catalog, payment sessions, the credit ledger
// and trial grants. All balance mutations pair a conditional UPDATE on
// accounts with a ledger append inside one transaction.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// pgx driver registration for database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Sentinel errors the service layer translates into its own taxonomy.
var (
	// ErrNotFound — no row matched the lookup.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — an insert hit a uniqueness constraint.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInsufficientCredits — a debit would drive the balance negative.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// Storage wraps the PostgreSQL connection and implements the repository
// methods used by the services.
type Storage struct {
	DB *sql.DB
}

// New opens a PostgreSQL connection and verifies it with a ping.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady verifies the schema has been migrated.
func (s *Storage) CheckDatabaseReady(ctx context.Context) error {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'payment_sessions'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table payment_sessions missing or query error: %w", err)
	}
	return nil
}
