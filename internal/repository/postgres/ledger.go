package postgres

import (
	"context"
	"time"

	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/repository"
)

type ledgerRepository struct {
	q DBTX
}

func NewLedgerRepository(q DBTX) repository.LedgerRepository {
	return &ledgerRepository{q: q}
}

func (r *ledgerRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `INSERT INTO transactions (user_id, booking_id, kind, amount_cents, currency, external_ref, description, created_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	return r.q.QueryRowContext(ctx, query,
		tx.UserID, tx.BookingID, tx.Kind, tx.AmountCents, tx.Currency, tx.ExternalRef, tx.Description, time.Now(),
	).Scan(&tx.ID)
}

func (r *ledgerRepository) ExistsByKindAndRef(ctx context.Context, kind domain.TransactionKind, externalRef string) (bool, error) {
	query := `SELECT count(*) FROM transactions WHERE kind = $1 AND external_ref = $2`
	var count int
	if err := r.q.QueryRowContext(ctx, query, kind, externalRef).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ledgerRepository) SumByKindAndBooking(ctx context.Context, kind domain.TransactionKind, bookingID int64) (int64, error) {
	query := `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE kind = $1 AND booking_id = $2`
	var sum int64
	err := r.q.QueryRowContext(ctx, query, kind, bookingID).Scan(&sum)
	return sum, err
}

func (r *ledgerRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.Transaction, error) {
	query := `SELECT id, user_id, booking_id, kind, amount_cents, currency, external_ref, COALESCE(description, ''), created_on
		FROM transactions WHERE booking_id = $1 ORDER BY created_on, id`
	rows, err := r.q.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.BookingID, &tx.Kind, &tx.AmountCents, &tx.Currency, &tx.ExternalRef, &tx.Description, &tx.CreatedOn); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (r *ledgerRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int32) ([]domain.Transaction, int32, error) {
	offset := (page - 1) * pageSize

	var count int32
	countQuery := `SELECT count(*) FROM transactions WHERE user_id = $1`
	if err := r.q.QueryRowContext(ctx, countQuery, userID).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, user_id, booking_id, kind, amount_cents, currency, external_ref, COALESCE(description, ''), created_on
		FROM transactions WHERE user_id = $1 ORDER BY created_on DESC LIMIT $2 OFFSET $3`
	rows, err := r.q.QueryContext(ctx, query, userID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.BookingID, &tx.Kind, &tx.AmountCents, &tx.Currency, &tx.ExternalRef, &tx.Description, &tx.CreatedOn); err != nil {
			return nil, 0, err
		}
		txs = append(txs, tx)
	}
	return txs, count, rows.Err()
}
