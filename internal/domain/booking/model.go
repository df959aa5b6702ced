package booking

import (
	"time"

	"gymdesk/internal/domain/apperr"
)

// Status constants
const (
	StatusConfirmed  = "confirmed"
	StatusCancelled  = "cancelled"
	StatusWaitlisted = "waitlisted"
)

// Booking ties a member to a class.
type Booking struct {
	ID        string    `json:"id,omitempty"`
	MemberID  string    `json:"memberId"`
	ClassID   string    `json:"classId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Validate checks if the Booking has valid data.
// PRE: Booking struct is initialized
// POST: Returns a ValidationError naming the first bad field, nil otherwise
// INVARIANT: MemberID and ClassID must not be empty
func (b Booking) Validate() error {
	if b.MemberID == "" {
		return apperr.Validation("memberId", "booking must be associated with a member")
	}
	if b.ClassID == "" {
		return apperr.Validation("classId", "booking must be associated with a class")
	}
	switch b.Status {
	case StatusConfirmed, StatusCancelled, StatusWaitlisted:
	default:
		return apperr.Validation("status", "status must be 'confirmed', 'cancelled', or 'waitlisted'")
	}
	return nil
}

// RecordID returns the booking id.
func (b Booking) RecordID() string { return b.ID }

// WithID returns a copy carrying id.
func (b Booking) WithID(id string) Booking {
	b.ID = id
	return b
}

// IsConfirmed returns true if the booking holds a seat.
func (b Booking) IsConfirmed() bool {
	return b.Status == StatusConfirmed
}
