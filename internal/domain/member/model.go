package member

import (
	"strings"
	"time"

	"gymdesk/internal/domain/apperr"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength = 100
)

// Business rule constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusArchived = "archived"
)

// ValidStatuses contains all valid member statuses.
var ValidStatuses = []string{StatusActive, StatusInactive, StatusArchived}

// Member holds state for the concept.
type Member struct {
	ID        string    `json:"id,omitempty"`
	AccountID string    `json:"accountId,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	PlanID    string    `json:"planId,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Validate checks if the Member has valid data.
// PRE: Member struct is initialized
// POST: Returns a ValidationError naming the first bad field, nil otherwise
// INVARIANT: Email must contain '@', Name must not be empty
func (m Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return apperr.Validation("name", "member name cannot be empty")
	}
	if len(m.Name) > MaxNameLength {
		return apperr.Validation("name", "member name cannot exceed 100 characters")
	}
	if !strings.Contains(m.Email, "@") {
		return apperr.Validation("email", "member email must be valid")
	}
	if !isValidStatus(m.Status) {
		return apperr.Validation("status", "status must be 'active', 'inactive', or 'archived'")
	}
	return nil
}

// RecordID returns the member's id.
func (m Member) RecordID() string { return m.ID }

// WithID returns a copy carrying id.
func (m Member) WithID(id string) Member {
	m.ID = id
	return m
}

// IsActive returns true if the member is currently active.
// INVARIANT: Status field is not mutated
func (m Member) IsActive() bool {
	return m.Status == StatusActive
}

func isValidStatus(s string) bool {
	for _, v := range ValidStatuses {
		if v == s {
			return true
		}
	}
	return false
}
