package service

import (
	"context"
	"fmt"

	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/logger"
	"gearshare-backend/internal/repository"
)

// Event types recorded on notification rows.
const (
	EventBookingRequested = "BOOKING_REQUESTED"
	EventBookingConfirmed = "BOOKING_CONFIRMED"
	EventBookingPaid      = "BOOKING_PAID"
	EventBookingCanceled  = "BOOKING_CANCELED"
	EventBookingCompleted = "BOOKING_COMPLETED"
	EventDepositRetry     = "DEPOSIT_RETRY"
	EventDepositFailed    = "DEPOSIT_FAILED"
	EventDepositReleased  = "DEPOSIT_RELEASED"
	EventDisputeFiled     = "DISPUTE_FILED"
	EventDisputeEvidence  = "DISPUTE_EVIDENCE_NEEDED"
	EventDisputeRebuttal  = "DISPUTE_REBUTTAL_DUE"
	EventDisputeResolved  = "DISPUTE_RESOLVED"
	EventDisputeClosed    = "DISPUTE_CLOSED"
)

// EmailDirectory resolves a user id to an email address. Identity lives in a
// separate system; the directory is the only thing this service asks of it.
type EmailDirectory interface {
	EmailFor(ctx context.Context, userID int64) (string, error)
}

// Notifier persists a notification row per event and pushes a best-effort
// email when a sender and directory are wired. Failures are logged and never
// propagated: notification delivery must not fail a committed transition.
type Notifier struct {
	store  repository.Store
	sender EmailSender
	emails EmailDirectory
}

func NewNotifier(store repository.Store, sender EmailSender, emails EmailDirectory) *Notifier {
	return &Notifier{store: store, sender: sender, emails: emails}
}

// Notify is called after the transition's transaction has committed.
func (n *Notifier) Notify(ctx context.Context, userID int64, eventType, title, message string, attrs map[string]string) {
	note := &domain.Notification{
		UserID:     userID,
		EventType:  eventType,
		Title:      title,
		Message:    message,
		Attributes: attrs,
	}
	if err := n.store.Notifications().Create(ctx, note); err != nil {
		logger.Error("failed to persist notification", "user_id", userID, "event_type", eventType, "error", err)
	}

	if n.sender == nil || n.emails == nil {
		return
	}
	addr, err := n.emails.EmailFor(ctx, userID)
	if err != nil || addr == "" {
		logger.Debug("no email address for user", "user_id", userID, "error", err)
		return
	}
	if err := n.sender.Send(ctx, addr, title, message); err != nil {
		logger.Error("failed to send notification email", "user_id", userID, "event_type", eventType, "error", err)
	}
}

// NotifyBooking attaches the booking id and notifies one party.
func (n *Notifier) NotifyBooking(ctx context.Context, userID int64, eventType, title, message string, bookingID int64) {
	n.Notify(ctx, userID, eventType, title, message, map[string]string{
		"booking_id": fmt.Sprintf("%d", bookingID),
	})
}

// List returns a page of a user's notifications, newest first.
func (n *Notifier) List(ctx context.Context, userID int64, page, pageSize int32) ([]domain.Notification, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return n.store.Notifications().List(ctx, userID, page, pageSize)
}

// MarkAsRead marks one of the user's notifications read.
func (n *Notifier) MarkAsRead(ctx context.Context, id, userID int64) error {
	return n.store.Notifications().MarkAsRead(ctx, id, userID)
}
