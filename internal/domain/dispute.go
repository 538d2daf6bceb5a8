package domain

import "time"

type PartyRole string

const (
	PartyRoleRenter PartyRole = "RENTER"
	PartyRoleOwner  PartyRole = "OWNER"
)

// Counterparty returns the other side of the booking.
func (r PartyRole) Counterparty() PartyRole {
	if r == PartyRoleRenter {
		return PartyRoleOwner
	}
	return PartyRoleRenter
}

type DisputeStatus string

const (
	DisputeStatusOpen                  DisputeStatus = "OPEN"
	DisputeStatusIntakeMissingEvidence DisputeStatus = "INTAKE_MISSING_EVIDENCE"
	DisputeStatusAwaitingRebuttal      DisputeStatus = "AWAITING_REBUTTAL"
	DisputeStatusUnderReview           DisputeStatus = "UNDER_REVIEW"
	DisputeStatusResolvedRenter        DisputeStatus = "RESOLVED_RENTER"
	DisputeStatusResolvedOwner         DisputeStatus = "RESOLVED_OWNER"
	DisputeStatusResolvedPartial       DisputeStatus = "RESOLVED_PARTIAL"
	DisputeStatusClosedAuto            DisputeStatus = "CLOSED_AUTO"
)

// Active reports whether the case blocks a second filing and keeps the
// booking deposit locked.
func (s DisputeStatus) Active() bool {
	switch s {
	case DisputeStatusOpen, DisputeStatusIntakeMissingEvidence,
		DisputeStatusAwaitingRebuttal, DisputeStatusUnderReview:
		return true
	}
	return false
}

// Resolved reports whether the status is an operator resolution outcome.
func (s DisputeStatus) Resolved() bool {
	switch s {
	case DisputeStatusResolvedRenter, DisputeStatusResolvedOwner, DisputeStatusResolvedPartial:
		return true
	}
	return false
}

type DisputeCategory string

const (
	DisputeCategoryDamage           DisputeCategory = "DAMAGE"
	DisputeCategoryMissingItem      DisputeCategory = "MISSING_ITEM"
	DisputeCategoryNotAsDescribed   DisputeCategory = "NOT_AS_DESCRIBED"
	DisputeCategoryLateReturn       DisputeCategory = "LATE_RETURN"
	DisputeCategoryIncorrectCharges DisputeCategory = "INCORRECT_CHARGES"
	DisputeCategoryPickupNoShow     DisputeCategory = "PICKUP_NO_SHOW"
	DisputeCategorySafetyOrFraud    DisputeCategory = "SAFETY_OR_FRAUD"
)

// RequiresBookingPhoto reports whether intake additionally demands at least
// one AV-clean booking photo from either party.
func (c DisputeCategory) RequiresBookingPhoto() bool {
	switch c {
	case DisputeCategoryDamage, DisputeCategoryMissingItem, DisputeCategoryNotAsDescribed:
		return true
	}
	return false
}

// SkipsEvidenceGating reports whether the category bypasses intake evidence
// checks and goes straight to rebuttal.
func (c DisputeCategory) SkipsEvidenceGating() bool {
	return c == DisputeCategoryPickupNoShow || c == DisputeCategorySafetyOrFraud
}

type DamageFlowKind string

const (
	DamageFlowGeneric        DamageFlowKind = "GENERIC"
	DamageFlowBrokeDuringUse DamageFlowKind = "BROKE_DURING_USE"
)

// Decision note tags recorded by the close variants.
const (
	CloseNoteDuplicate     = "closed_duplicate"
	CloseNoteLate          = "closed_late_filing"
	CloseNoteNoEvidence    = "closed_no_evidence"
	CloseNoteWindowExpired = "window_expired_at_filing"
)

// NoteDepositCaptureCapped is appended to the decision notes when the
// requested capture exceeded the held deposit and was clamped.
const NoteDepositCaptureCapped = "deposit_capture_capped"

type DisputeCase struct {
	ID           int64           `json:"id"`
	BookingID    int64           `json:"booking_id"`
	OpenedBy     int64           `json:"opened_by"`
	OpenedByRole PartyRole       `json:"opened_by_role"`
	Category     DisputeCategory `json:"category"`
	DamageFlow   DamageFlowKind  `json:"damage_flow_kind"`
	Status       DisputeStatus   `json:"status"`

	FiledAt             time.Time  `json:"filed_at"`
	IntakeEvidenceDueAt *time.Time `json:"intake_evidence_due_at,omitempty"`
	RebuttalDueAt       *time.Time `json:"rebuttal_due_at,omitempty"`
	ReviewStartedAt     *time.Time `json:"review_started_at,omitempty"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	AutoRebuttalTimeout bool       `json:"auto_rebuttal_timeout"`

	RefundAmountCents   int64  `json:"refund_amount_cents"`
	DepositCaptureCents int64  `json:"deposit_capture_cents"`
	DecisionNotes       string `json:"decision_notes"`
	DepositLocked       bool   `json:"deposit_locked"`

	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}

type EvidenceKind string

const (
	EvidenceKindPhoto EvidenceKind = "PHOTO"
	EvidenceKindVideo EvidenceKind = "VIDEO"
)

type DisputeEvidence struct {
	ID         int64        `json:"id"`
	DisputeID  int64        `json:"dispute_id"`
	UploadedBy int64        `json:"uploaded_by"`
	Role       PartyRole    `json:"role"`
	Kind       EvidenceKind `json:"kind"`
	AVStatus   AVStatus     `json:"av_status"`
	URL        string       `json:"url"`
	CreatedOn  time.Time    `json:"created_on"`
}

type DisputeMessage struct {
	ID        int64     `json:"id"`
	DisputeID int64     `json:"dispute_id"`
	AuthorID  int64     `json:"author_id"`
	Role      PartyRole `json:"role"`
	Body      string    `json:"body"`
	CreatedOn time.Time `json:"created_on"`
}
