// Package service holds the booking, settlement and dispute orchestrations.
// Every state transition follows the same shape: validate under a row lock,
// call the payment gateway outside any lock with a deterministic idempotency
// key, then re-lock, re-validate and apply the database effects in one
// transaction. A sweep that observes an already-applied transition returns
// nil.
package service

import (
	"time"

	"gearshare-backend/internal/config"
	"gearshare-backend/internal/payments"
	"gearshare-backend/internal/repository"
	"gearshare-backend/internal/taskqueue"
)

// Services bundles the constructed service set for the cmd wiring.
type Services struct {
	Bookings    *BookingService
	Settlements *SettlementService
	Disputes    *DisputeService
	Notifier    *Notifier
}

func New(store repository.Store, gateway payments.Gateway, queue *taskqueue.Queue, notifier *Notifier, cfg *config.Config) *Services {
	settlements := NewSettlementService(store, gateway, cfg)
	bookings := NewBookingService(store, gateway, settlements, queue, notifier, cfg)
	disputes := NewDisputeService(store, settlements, notifier, cfg)

	queue.Register(TaskRetryDepositAuth, bookings.handleDepositRetryTask)

	return &Services{
		Bookings:    bookings,
		Settlements: settlements,
		Disputes:    disputes,
		Notifier:    notifier,
	}
}

// SetClock overrides the time source on every service; tests only.
func (s *Services) SetClock(now func() time.Time) {
	s.Bookings.now = now
	s.Settlements.now = now
	s.Disputes.now = now
}
