package postgres

import (
	"context"
	"time"

	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/repository"
)

type disputeRepository struct {
	q DBTX
}

func NewDisputeRepository(q DBTX) repository.DisputeRepository {
	return &disputeRepository{q: q}
}

const disputeColumns = `id, booking_id, opened_by, opened_by_role, category, damage_flow_kind, status,
	filed_at, intake_evidence_due_at, rebuttal_due_at, review_started_at, resolved_at,
	auto_rebuttal_timeout, refund_amount_cents, deposit_capture_cents,
	COALESCE(decision_notes, ''), deposit_locked, created_on, updated_on`

func scanDispute(row rowScanner) (*domain.DisputeCase, error) {
	d := &domain.DisputeCase{}
	err := row.Scan(
		&d.ID, &d.BookingID, &d.OpenedBy, &d.OpenedByRole, &d.Category, &d.DamageFlow, &d.Status,
		&d.FiledAt, &d.IntakeEvidenceDueAt, &d.RebuttalDueAt, &d.ReviewStartedAt, &d.ResolvedAt,
		&d.AutoRebuttalTimeout, &d.RefundAmountCents, &d.DepositCaptureCents,
		&d.DecisionNotes, &d.DepositLocked, &d.CreatedOn, &d.UpdatedOn,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *disputeRepository) Create(ctx context.Context, d *domain.DisputeCase) error {
	query := `INSERT INTO disputes (booking_id, opened_by, opened_by_role, category, damage_flow_kind, status,
			filed_at, intake_evidence_due_at, rebuttal_due_at, resolved_at,
			refund_amount_cents, deposit_capture_cents, decision_notes, deposit_locked, created_on, updated_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) RETURNING id`
	now := time.Now()
	return r.q.QueryRowContext(ctx, query,
		d.BookingID, d.OpenedBy, d.OpenedByRole, d.Category, d.DamageFlow, d.Status,
		d.FiledAt, d.IntakeEvidenceDueAt, d.RebuttalDueAt, d.ResolvedAt,
		d.RefundAmountCents, d.DepositCaptureCents, d.DecisionNotes, d.DepositLocked, now, now,
	).Scan(&d.ID)
}

func (r *disputeRepository) GetByID(ctx context.Context, id int64) (*domain.DisputeCase, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	return scanDispute(r.q.QueryRowContext(ctx, query, id))
}

func (r *disputeRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.DisputeCase, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1 FOR UPDATE`
	return scanDispute(r.q.QueryRowContext(ctx, query, id))
}

func (r *disputeRepository) Update(ctx context.Context, d *domain.DisputeCase) error {
	query := `UPDATE disputes SET
			status=$1, intake_evidence_due_at=$2, rebuttal_due_at=$3, review_started_at=$4, resolved_at=$5,
			auto_rebuttal_timeout=$6, refund_amount_cents=$7, deposit_capture_cents=$8,
			decision_notes=$9, deposit_locked=$10, updated_on=$11
		WHERE id=$12`
	_, err := r.q.ExecContext(ctx, query,
		d.Status, d.IntakeEvidenceDueAt, d.RebuttalDueAt, d.ReviewStartedAt, d.ResolvedAt,
		d.AutoRebuttalTimeout, d.RefundAmountCents, d.DepositCaptureCents,
		d.DecisionNotes, d.DepositLocked, time.Now(), d.ID,
	)
	return err
}

func (r *disputeRepository) listDisputes(ctx context.Context, query string, args ...interface{}) ([]domain.DisputeCase, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []domain.DisputeCase
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *d)
	}
	return cases, rows.Err()
}

func (r *disputeRepository) ListActiveByBooking(ctx context.Context, bookingID int64) ([]domain.DisputeCase, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes
		WHERE booking_id = $1
		  AND status IN ('OPEN', 'INTAKE_MISSING_EVIDENCE', 'AWAITING_REBUTTAL', 'UNDER_REVIEW')
		ORDER BY filed_at, id`
	return r.listDisputes(ctx, query, bookingID)
}

func (r *disputeRepository) ListRebuttalOverdue(ctx context.Context, now time.Time) ([]domain.DisputeCase, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes
		WHERE status = 'AWAITING_REBUTTAL'
		  AND rebuttal_due_at IS NOT NULL
		  AND rebuttal_due_at <= $1
		ORDER BY rebuttal_due_at, id`
	return r.listDisputes(ctx, query, now)
}

func (r *disputeRepository) AddEvidence(ctx context.Context, e *domain.DisputeEvidence) error {
	query := `INSERT INTO dispute_evidence (dispute_id, uploaded_by, role, kind, av_status, url, created_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	return r.q.QueryRowContext(ctx, query,
		e.DisputeID, e.UploadedBy, e.Role, e.Kind, e.AVStatus, e.URL, time.Now(),
	).Scan(&e.ID)
}

func (r *disputeRepository) AddMessage(ctx context.Context, m *domain.DisputeMessage) error {
	query := `INSERT INTO dispute_messages (dispute_id, author_id, role, body, created_on)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	return r.q.QueryRowContext(ctx, query,
		m.DisputeID, m.AuthorID, m.Role, m.Body, time.Now(),
	).Scan(&m.ID)
}

func (r *disputeRepository) CountCleanEvidence(ctx context.Context, disputeID int64, kind domain.EvidenceKind) (int, error) {
	query := `SELECT count(*) FROM dispute_evidence
		WHERE dispute_id = $1 AND av_status = 'CLEAN' AND ($2 = '' OR kind = $2)`
	var count int
	err := r.q.QueryRowContext(ctx, query, disputeID, string(kind)).Scan(&count)
	return count, err
}

func (r *disputeRepository) HasPartyActivity(ctx context.Context, disputeID int64, role domain.PartyRole, since, until time.Time) (bool, error) {
	query := `SELECT
		(SELECT count(*) FROM dispute_messages
			WHERE dispute_id = $1 AND role = $2 AND created_on > $3 AND created_on <= $4)
		+
		(SELECT count(*) FROM dispute_evidence
			WHERE dispute_id = $1 AND role = $2 AND created_on > $3 AND created_on <= $4)`
	var count int
	if err := r.q.QueryRowContext(ctx, query, disputeID, role, since, until).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
