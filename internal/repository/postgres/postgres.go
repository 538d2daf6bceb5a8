package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"gearshare-backend/internal/repository"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx, letting the same
// repository code run standalone or inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Store struct {
	db       *sql.DB
	q        DBTX
	bookings repository.BookingRepository
	ledger   repository.LedgerRepository
	disputes repository.DisputeRepository
	notes    repository.NotificationRepository
}

func NewStore(db *sql.DB) *Store {
	return newStore(db, db)
}

func newStore(db *sql.DB, q DBTX) *Store {
	return &Store{
		db:       db,
		q:        q,
		bookings: NewBookingRepository(q),
		ledger:   NewLedgerRepository(q),
		disputes: NewDisputeRepository(q),
		notes:    NewNotificationRepository(q),
	}
}

func (s *Store) Bookings() repository.BookingRepository           { return s.bookings }
func (s *Store) Ledger() repository.LedgerRepository              { return s.ledger }
func (s *Store) Disputes() repository.DisputeRepository           { return s.disputes }
func (s *Store) Notifications() repository.NotificationRepository { return s.notes }

// WithTx runs fn with a Store bound to one transaction. Row locks taken by
// the ForUpdate reads are held until commit/rollback. Nested calls reuse the
// enclosing transaction.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(newStore(s.db, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ repository.Store = (*Store)(nil)
