package member_test

import (
	"testing"

	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/member"
)

// TestMemberValidation tests validation of Member.
func TestMemberValidation(t *testing.T) {
	tests := []struct {
		name      string
		member    member.Member
		wantField string
	}{
		{
			name:   "valid member",
			member: member.Member{Name: "John Doe", Email: "john@example.com", Status: member.StatusActive},
		},
		{
			name:   "valid archived member",
			member: member.Member{Name: "John Doe", Email: "john@example.com", Status: member.StatusArchived},
		},
		{
			name:      "empty name",
			member:    member.Member{Name: " ", Email: "john@example.com", Status: member.StatusActive},
			wantField: "name",
		},
		{
			name:      "invalid email",
			member:    member.Member{Name: "John Doe", Email: "invalid-email", Status: member.StatusActive},
			wantField: "email",
		},
		{
			name:      "invalid status",
			member:    member.Member{Name: "John Doe", Email: "john@example.com", Status: "frozen"},
			wantField: "status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.member.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			ve, ok := err.(*apperr.ValidationError)
			if !ok {
				t.Fatalf("expected *apperr.ValidationError, got %T (%v)", err, err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("expected field %s, got %s", tt.wantField, ve.Field)
			}
		})
	}
}

// TestWithID verifies WithID returns a copy.
func TestWithID(t *testing.T) {
	m := member.Member{ID: "a"}
	n := m.WithID("b")
	if m.ID != "a" || n.RecordID() != "b" {
		t.Errorf("unexpected ids: %s %s", m.ID, n.ID)
	}
}
