package payment

import (
	"time"

	"gymdesk/internal/domain/apperr"
)

// Status constants
const (
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusFailed   = "failed"
	StatusRefunded = "refunded"
)

// DefaultCurrency is used when a payment is recorded without one.
const DefaultCurrency = "USD"

// Payment records a membership charge. Amount is in cents.
// Processing is out of scope: records are created as pending and updated by staff.
type Payment struct {
	ID        string    `json:"id,omitempty"`
	MemberID  string    `json:"memberId"`
	PlanID    string    `json:"planId,omitempty"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	PaidAt    time.Time `json:"paidAt,omitzero"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Validate checks if the Payment has valid data.
// PRE: Payment struct is populated
// POST: Returns a ValidationError naming the first bad field, nil otherwise
func (p Payment) Validate() error {
	if p.MemberID == "" {
		return apperr.Validation("memberId", "payment must be associated with a member")
	}
	if p.Amount < 0 {
		return apperr.Validation("amount", "amount cannot be negative")
	}
	if len(p.Currency) != 3 {
		return apperr.Validation("currency", "currency must be a 3-letter code")
	}
	switch p.Status {
	case StatusPending, StatusFailed, StatusRefunded:
	case StatusPaid:
		if p.PaidAt.IsZero() {
			return apperr.Validation("paidAt", "paid payments need a paid date")
		}
	default:
		return apperr.Validation("status", "status must be 'pending', 'paid', 'failed', or 'refunded'")
	}
	return nil
}

// RecordID returns the payment id.
func (p Payment) RecordID() string { return p.ID }

// WithID returns a copy carrying id.
func (p Payment) WithID(id string) Payment {
	p.ID = id
	return p
}
