package trainer

import (
	"strings"
	"time"

	"gymdesk/internal/domain/apperr"
)

// Status constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Trainer is a coach who runs classes.
type Trainer struct {
	ID        string    `json:"id,omitempty"`
	AccountID string    `json:"accountId,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Specialty string    `json:"specialty,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Validate checks if the Trainer has valid data.
// PRE: Trainer struct is populated
// POST: Returns a ValidationError naming the first bad field, nil otherwise
func (t Trainer) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return apperr.Validation("name", "trainer name cannot be empty")
	}
	if !strings.Contains(t.Email, "@") {
		return apperr.Validation("email", "trainer email must be valid")
	}
	if t.Status != StatusActive && t.Status != StatusInactive {
		return apperr.Validation("status", "status must be 'active' or 'inactive'")
	}
	return nil
}

// RecordID returns the trainer's id.
func (t Trainer) RecordID() string { return t.ID }

// WithID returns a copy carrying id.
func (t Trainer) WithID(id string) Trainer {
	t.ID = id
	return t
}
