package domain

import "time"

type BookingStatus string

const (
	BookingStatusRequested BookingStatus = "REQUESTED"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusPaid      BookingStatus = "PAID"
	BookingStatusCanceled  BookingStatus = "CANCELED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

// IsTerminal reports whether the status accepts no further transitions.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCanceled || s == BookingStatusCompleted
}

type CancelActor string

const (
	CancelActorRenter CancelActor = "RENTER"
	CancelActorOwner  CancelActor = "OWNER"
	CancelActorSystem CancelActor = "SYSTEM"
	CancelActorNoShow CancelActor = "NO_SHOW"
)

// BookingTotals is the money snapshot computed once at confirmation.
// All downstream settlement math reads these fields; they are never
// recomputed after confirmation except by an explicit operator
// date adjustment.
type BookingTotals struct {
	RentalSubtotalCents int64 `json:"rental_subtotal_cents"`
	RenterFeeCents      int64 `json:"renter_fee_cents"`
	OwnerFeeCents       int64 `json:"owner_fee_cents"`
	OwnerPayoutCents    int64 `json:"owner_payout_cents"`
	PlatformFeeCents    int64 `json:"platform_fee_cents"`
	DepositCents        int64 `json:"deposit_cents"`
	// TotalChargeCents is what the renter is charged at payment time:
	// subtotal plus renter fee. The deposit is a separate hold.
	TotalChargeCents int64 `json:"total_charge_cents"`
	// Per-day rates used for late-fee math.
	PerDayRentalCents int64 `json:"per_day_rental_cents"`
	PerDayPayoutCents int64 `json:"per_day_payout_cents"`
}

type Booking struct {
	ID        int64 `json:"id"`
	ListingID int64 `json:"listing_id"`
	OwnerID   int64 `json:"owner_id"`
	RenterID  int64 `json:"renter_id"`

	// Half-open range: [StartDate, EndDate). EndDate is exclusive for
	// conflict checks.
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	Status  BookingStatus `json:"status"`
	Version int32         `json:"version"`

	// Listing day rate and deposit captured at request time; the totals
	// snapshot is derived from them at confirmation.
	DayRateCents int64 `json:"day_rate_cents"`
	DepositCents int64 `json:"deposit_cents"`

	// Renter payment references stored by the gateway's vault.
	CustomerRef      string `json:"customer_ref"`
	PaymentMethodRef string `json:"payment_method_ref"`
	ChargeRef        string `json:"charge_ref"`
	DepositHoldRef   string `json:"deposit_hold_ref"`

	DepositAttempts           int32      `json:"deposit_attempts"`
	DepositAuthorizedAt       *time.Time `json:"deposit_authorized_at,omitempty"`
	DepositReleaseScheduledAt *time.Time `json:"deposit_release_scheduled_at,omitempty"`
	DepositReleasedAt         *time.Time `json:"deposit_released_at,omitempty"`

	PickupConfirmedAt      *time.Time `json:"pickup_confirmed_at,omitempty"`
	BeforePhotosUploadedAt *time.Time `json:"before_photos_uploaded_at,omitempty"`
	ReturnedByRenterAt     *time.Time `json:"returned_by_renter_at,omitempty"`
	ReturnConfirmedAt      *time.Time `json:"return_confirmed_at,omitempty"`
	AfterPhotosUploadedAt  *time.Time `json:"after_photos_uploaded_at,omitempty"`
	DisputeWindowExpiresAt *time.Time `json:"dispute_window_expires_at,omitempty"`

	CanceledBy     CancelActor `json:"canceled_by,omitempty"`
	CanceledReason string      `json:"canceled_reason,omitempty"`
	AutoCanceled   bool        `json:"auto_canceled"`

	IsDisputed    bool `json:"is_disputed"`
	DepositLocked bool `json:"deposit_locked"`

	Totals *BookingTotals `json:"totals,omitempty"`

	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}

// HasDepositHold reports whether an authorized hold is still outstanding.
func (b *Booking) HasDepositHold() bool {
	return b.DepositHoldRef != "" && b.DepositReleasedAt == nil
}

// DisputeWindowOpen reports whether a dispute may still be filed at t.
// A booking with no window set (not yet returned/completed) is treated
// as open.
func (b *Booking) DisputeWindowOpen(t time.Time) bool {
	return b.DisputeWindowExpiresAt == nil || t.Before(*b.DisputeWindowExpiresAt)
}

type PhotoPhase string

const (
	PhotoPhaseBefore PhotoPhase = "BEFORE"
	PhotoPhaseAfter  PhotoPhase = "AFTER"
)

type AVStatus string

const (
	AVStatusPending  AVStatus = "PENDING"
	AVStatusClean    AVStatus = "CLEAN"
	AVStatusInfected AVStatus = "INFECTED"
)

// BookingPhoto is an uploaded handover photo. Upload and antivirus scanning
// happen outside this system; only the scan verdict is read here.
type BookingPhoto struct {
	ID         int64      `json:"id"`
	BookingID  int64      `json:"booking_id"`
	UploadedBy int64      `json:"uploaded_by"`
	Role       PartyRole  `json:"role"`
	Phase      PhotoPhase `json:"phase"`
	AVStatus   AVStatus   `json:"av_status"`
	URL        string     `json:"url"`
	CreatedOn  time.Time  `json:"created_on"`
}
