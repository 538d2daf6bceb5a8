package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gearshare-backend/internal/config"
	"gearshare-backend/internal/domain"
	"gearshare-backend/internal/repository"
)

// MockStore satisfies repository.Store. WithTx runs fn against the same
// store, so expectations set on the repos cover both paths.
type MockStore struct {
	mock.Mock
	bookings *MockBookingRepo
	ledger   *MockLedgerRepo
	disputes *MockDisputeRepo
	notes    *MockNotificationRepo
}

func newMockStore() *MockStore {
	return &MockStore{
		bookings: &MockBookingRepo{},
		ledger:   &MockLedgerRepo{},
		disputes: &MockDisputeRepo{},
		notes:    &MockNotificationRepo{},
	}
}

func (m *MockStore) Bookings() repository.BookingRepository           { return m.bookings }
func (m *MockStore) Ledger() repository.LedgerRepository              { return m.ledger }
func (m *MockStore) Disputes() repository.DisputeRepository           { return m.disputes }
func (m *MockStore) Notifications() repository.NotificationRepository { return m.notes }

func (m *MockStore) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	return fn(m)
}

func (m *MockStore) assertExpectations(t mock.TestingT) {
	m.bookings.AssertExpectations(t)
	m.ledger.AssertExpectations(t)
	m.disputes.AssertExpectations(t)
	m.notes.AssertExpectations(t)
}

type MockBookingRepo struct {
	mock.Mock
}

func (m *MockBookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBookingRepo) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if b := args.Get(0); b != nil {
		return b.(*domain.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBookingRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if b := args.Get(0); b != nil {
		return b.(*domain.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBookingRepo) Update(ctx context.Context, b *domain.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBookingRepo) HasOverlap(ctx context.Context, listingID int64, start, end time.Time, excludeID int64) (bool, error) {
	args := m.Called(ctx, listingID, start, end, excludeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) ListNeedingDepositAuth(ctx context.Context, today time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, today)
	if v := args.Get(0); v != nil {
		return v.([]domain.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBookingRepo) ListDepositReleasable(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, now)
	if v := args.Get(0); v != nil {
		return v.([]domain.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBookingRepo) ListStalePrePayment(ctx context.Context, today time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, today)
	if v := args.Get(0); v != nil {
		return v.([]domain.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBookingRepo) CountCleanPhotos(ctx context.Context, bookingID int64, phase domain.PhotoPhase) (int, error) {
	args := m.Called(ctx, bookingID, phase)
	return args.Int(0), args.Error(1)
}

func (m *MockBookingRepo) AddPhoto(ctx context.Context, p *domain.BookingPhoto) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

type MockLedgerRepo struct {
	mock.Mock
}

func (m *MockLedgerRepo) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockLedgerRepo) ExistsByKindAndRef(ctx context.Context, kind domain.TransactionKind, externalRef string) (bool, error) {
	args := m.Called(ctx, kind, externalRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepo) SumByKindAndBooking(ctx context.Context, kind domain.TransactionKind, bookingID int64) (int64, error) {
	args := m.Called(ctx, kind, bookingID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepo) ListByBooking(ctx context.Context, bookingID int64) ([]domain.Transaction, error) {
	args := m.Called(ctx, bookingID)
	if v := args.Get(0); v != nil {
		return v.([]domain.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerRepo) ListByUser(ctx context.Context, userID int64, page, pageSize int32) ([]domain.Transaction, int32, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if v := args.Get(0); v != nil {
		return v.([]domain.Transaction), args.Get(1).(int32), args.Error(2)
	}
	return nil, 0, args.Error(2)
}

type MockDisputeRepo struct {
	mock.Mock
}

func (m *MockDisputeRepo) Create(ctx context.Context, d *domain.DisputeCase) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDisputeRepo) GetByID(ctx context.Context, id int64) (*domain.DisputeCase, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*domain.DisputeCase), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDisputeRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.DisputeCase, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*domain.DisputeCase), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDisputeRepo) Update(ctx context.Context, d *domain.DisputeCase) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDisputeRepo) ListActiveByBooking(ctx context.Context, bookingID int64) ([]domain.DisputeCase, error) {
	args := m.Called(ctx, bookingID)
	if v := args.Get(0); v != nil {
		return v.([]domain.DisputeCase), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDisputeRepo) ListRebuttalOverdue(ctx context.Context, now time.Time) ([]domain.DisputeCase, error) {
	args := m.Called(ctx, now)
	if v := args.Get(0); v != nil {
		return v.([]domain.DisputeCase), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDisputeRepo) AddEvidence(ctx context.Context, e *domain.DisputeEvidence) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockDisputeRepo) AddMessage(ctx context.Context, msg *domain.DisputeMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockDisputeRepo) CountCleanEvidence(ctx context.Context, disputeID int64, kind domain.EvidenceKind) (int, error) {
	args := m.Called(ctx, disputeID, kind)
	return args.Int(0), args.Error(1)
}

func (m *MockDisputeRepo) HasPartyActivity(ctx context.Context, disputeID int64, role domain.PartyRole, since, until time.Time) (bool, error) {
	args := m.Called(ctx, disputeID, role, since, until)
	return args.Bool(0), args.Error(1)
}

type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, note *domain.Notification) error {
	args := m.Called(ctx, note)
	return args.Error(0)
}

func (m *MockNotificationRepo) List(ctx context.Context, userID int64, page, pageSize int32) ([]domain.Notification, int32, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if v := args.Get(0); v != nil {
		return v.([]domain.Notification), args.Get(1).(int32), args.Error(2)
	}
	return nil, 0, args.Error(2)
}

func (m *MockNotificationRepo) MarkAsRead(ctx context.Context, id, userID int64) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

// testConfig returns a config with the defaults filled.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Database = config.DatabaseConfig{Host: "localhost", User: "test", Database: "test"}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}
