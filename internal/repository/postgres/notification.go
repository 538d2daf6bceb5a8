package postgres

import (
	"context"
	"encoding/json"
	"time"

	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/repository"
)

type notificationRepository struct {
	q DBTX
}

func NewNotificationRepository(q DBTX) repository.NotificationRepository {
	return &notificationRepository{q: q}
}

func (r *notificationRepository) Create(ctx context.Context, note *domain.Notification) error {
	attrs, err := json.Marshal(note.Attributes)
	if err != nil {
		return err
	}
	query := `INSERT INTO notifications (user_id, event_type, title, message, attributes, is_read, created_on)
		VALUES ($1, $2, $3, $4, $5, false, $6) RETURNING id`
	return r.q.QueryRowContext(ctx, query,
		note.UserID, note.EventType, note.Title, note.Message, attrs, time.Now(),
	).Scan(&note.ID)
}

func (r *notificationRepository) List(ctx context.Context, userID int64, page, pageSize int32) ([]domain.Notification, int32, error) {
	offset := (page - 1) * pageSize

	var count int32
	if err := r.q.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, user_id, event_type, title, message, attributes, is_read, created_on
		FROM notifications WHERE user_id = $1 ORDER BY created_on DESC LIMIT $2 OFFSET $3`
	rows, err := r.q.QueryContext(ctx, query, userID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notes []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var attrs []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.EventType, &n.Title, &n.Message, &attrs, &n.IsRead, &n.CreatedOn); err != nil {
			return nil, 0, err
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &n.Attributes); err != nil {
				return nil, 0, err
			}
		}
		notes = append(notes, n)
	}
	return notes, count, rows.Err()
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID int64) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`, id, userID)
	return err
}
