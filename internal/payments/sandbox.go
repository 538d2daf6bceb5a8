package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"gearshare-backend/internal/logger"
)

// Sandbox is an in-memory gateway for development and tests. It honors
// idempotency keys (the same key always returns the first result without
// moving money twice) and can be scripted to fail specific operations.
type Sandbox struct {
	mu      sync.Mutex
	results map[string]string // idempotency key -> reference
	holds   map[string]*sandboxHold
	scripts map[string][]error // op -> queued errors, consumed FIFO
}

type sandboxHold struct {
	amountCents   int64
	capturedCents int64
	canceled      bool
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		results: make(map[string]string),
		holds:   make(map[string]*sandboxHold),
		scripts: make(map[string][]error),
	}
}

// ScriptError queues err as the outcome of the next call to op
// ("charge", "authorize_hold", "capture_hold", "cancel_hold", "refund",
// "transfer"). Scripted errors are not memoized against the idempotency key,
// mirroring providers that do not cache failures.
func (s *Sandbox) ScriptError(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[op] = append(s.scripts[op], err)
}

func (s *Sandbox) nextScripted(op string) error {
	if q := s.scripts[op]; len(q) > 0 {
		s.scripts[op] = q[1:]
		return q[0]
	}
	return nil
}

func (s *Sandbox) call(op, idempotencyKey, refPrefix string) (string, bool, error) {
	if err := s.nextScripted(op); err != nil {
		return "", false, err
	}
	if ref, ok := s.results[idempotencyKey]; ok {
		return ref, true, nil
	}
	ref := fmt.Sprintf("%s_%s", refPrefix, uuid.NewString())
	s.results[idempotencyKey] = ref
	return ref, false, nil
}

func (s *Sandbox) Charge(ctx context.Context, amountCents int64, customerRef, methodRef, idempotencyKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amountCents <= 0 {
		return "", NewError(ErrorClassPermanent, "charge", "invalid_amount", nil)
	}
	if customerRef == "" || methodRef == "" {
		return "", NewError(ErrorClassConfig, "charge", "missing_customer", nil)
	}
	ref, replay, err := s.call("charge", idempotencyKey, "ch")
	if err != nil {
		return "", err
	}
	if !replay {
		logger.Debug("sandbox charge", "amount_cents", amountCents, "ref", ref)
	}
	return ref, nil
}

func (s *Sandbox) AuthorizeHold(ctx context.Context, amountCents int64, customerRef, methodRef, idempotencyKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amountCents <= 0 {
		return "", NewError(ErrorClassPermanent, "authorize_hold", "invalid_amount", nil)
	}
	ref, replay, err := s.call("authorize_hold", idempotencyKey, "hold")
	if err != nil {
		return "", err
	}
	if !replay {
		s.holds[ref] = &sandboxHold{amountCents: amountCents}
	}
	return ref, nil
}

func (s *Sandbox) CaptureHold(ctx context.Context, holdRef string, amountCents int64, idempotencyKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.nextScripted("capture_hold"); err != nil {
		return "", err
	}
	if ref, ok := s.results[idempotencyKey]; ok {
		return ref, nil
	}
	h, ok := s.holds[holdRef]
	if !ok || h.canceled {
		return "", NewError(ErrorClassPermanent, "capture_hold", CodeHoldNotFound, nil)
	}
	if amountCents > h.amountCents-h.capturedCents {
		return "", NewError(ErrorClassPermanent, "capture_hold", "amount_exceeds_hold", nil)
	}
	h.capturedCents += amountCents
	ref := fmt.Sprintf("cap_%s", uuid.NewString())
	s.results[idempotencyKey] = ref
	return ref, nil
}

func (s *Sandbox) CancelHold(ctx context.Context, holdRef string, idempotencyKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.nextScripted("cancel_hold"); err != nil {
		return err
	}
	if _, ok := s.results[idempotencyKey]; ok {
		return nil
	}
	h, ok := s.holds[holdRef]
	if !ok {
		return NewError(ErrorClassPermanent, "cancel_hold", CodeHoldNotFound, nil)
	}
	h.canceled = true
	s.results[idempotencyKey] = holdRef
	return nil
}

func (s *Sandbox) Refund(ctx context.Context, chargeRef string, amountCents int64, idempotencyKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chargeRef == "" {
		return "", NewError(ErrorClassPermanent, "refund", "missing_charge", nil)
	}
	if amountCents <= 0 {
		return "", NewError(ErrorClassPermanent, "refund", "invalid_amount", nil)
	}
	ref, _, err := s.call("refund", idempotencyKey, "re")
	return ref, err
}

func (s *Sandbox) Transfer(ctx context.Context, destinationRef string, amountCents int64, idempotencyKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if destinationRef == "" {
		return "", NewError(ErrorClassConfig, "transfer", "missing_destination", nil)
	}
	if amountCents <= 0 {
		return "", NewError(ErrorClassPermanent, "transfer", "invalid_amount", nil)
	}
	ref, _, err := s.call("transfer", idempotencyKey, "tr")
	return ref, err
}

// HoldState returns (amount, captured, canceled) for tests.
func (s *Sandbox) HoldState(holdRef string) (int64, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[holdRef]
	if !ok {
		return 0, 0, false
	}
	return h.amountCents, h.capturedCents, h.canceled
}

var _ Gateway = (*Sandbox)(nil)
