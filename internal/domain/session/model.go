package session

import (
	"errors"
	"strings"

	"gymdesk/internal/domain/role"
)

// Status is the lifecycle state of a Session.
type Status string

// Status constants
const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// User is the normalised identity of the signed-in person.
// INVARIANT: Role is always a valid role once a User exists
type User struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  role.Role `json:"role"`
}

// Session is the current authentication state.
type Session struct {
	Token  string `json:"token,omitempty"`
	User   *User  `json:"user,omitempty"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Snapshot is the persisted part of a Session.
type Snapshot struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// ErrInvalidSnapshot is returned when a persisted snapshot has an impossible shape.
var ErrInvalidSnapshot = errors.New("session snapshot is invalid")

// Empty returns the boot-time Session.
func Empty() Session {
	return Session{Status: StatusIdle}
}

// HasToken returns true if the session carries an access token.
// INVARIANT: Session fields are not mutated
func (s Session) HasToken() bool {
	return s.Token != ""
}

// Role returns the session's role, or role.Unknown if no user is resolved.
// INVARIANT: Session fields are not mutated
func (s Session) Role() role.Role {
	if s.User == nil {
		return role.Unknown
	}
	return s.User.Role
}

// IsAuthenticated returns true if a user and token are present.
func (s Session) IsAuthenticated() bool {
	return s.User != nil && s.Token != ""
}

// Clone returns a deep copy safe to hand to consumers.
func (s Session) Clone() Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Snapshot returns the persisted part of the session.
func (s Session) Snapshot() Snapshot {
	c := s.Clone()
	return Snapshot{User: c.User, Token: c.Token}
}

// Validate checks that a snapshot read from storage is a possible prior state.
// PRE: none
// POST: returns nil if the snapshot is empty or holds a user with a valid role
func (sn Snapshot) Validate() error {
	if sn.User == nil {
		if sn.Token != "" {
			return ErrInvalidSnapshot
		}
		return nil
	}
	if strings.TrimSpace(sn.User.ID) == "" || !sn.User.Role.IsValid() {
		return ErrInvalidSnapshot
	}
	return nil
}

// FromSnapshot rebuilds a Session from a persisted snapshot.
// A token means the prior state was Succeeded; otherwise Idle.
func FromSnapshot(sn Snapshot) Session {
	s := Session{User: sn.User, Token: sn.Token, Status: StatusIdle}
	if sn.Token != "" {
		s.Status = StatusSucceeded
	}
	return s.Clone()
}
