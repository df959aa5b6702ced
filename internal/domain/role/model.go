package role

import (
	"strings"
)

// Role is the closed set of roles a session may hold.
type Role string

// Role constants
const (
	Unknown Role = ""
	Member  Role = "member"
	Trainer Role = "trainer"
	Owner   Role = "owner"
)

// Default is applied when no metadata level carries a recognised role.
const Default = Member

// DefaultHome is the redirect target for a role with no canonical home.
const DefaultHome = "/dashboard"

// All contains every valid role.
var All = []Role{Member, Trainer, Owner}

// MetadataKey is the metadata field that carries the role at every level.
const MetadataKey = "role"

// Parse normalises s into a Role.
// PRE: none
// POST: returns the matching Role and true, or Unknown and false
func Parse(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range All {
		if v == r {
			return r, true
		}
	}
	return Unknown, false
}

// Resolve derives a Role from provider metadata.
// Lookup order: app-level metadata, then user-level metadata, then Default.
// A level whose value is missing or unrecognised falls through to the next.
// PRE: either map may be nil
// POST: returns a valid Role, never Unknown
func Resolve(appMetadata, userMetadata map[string]any) Role {
	for _, md := range []map[string]any{appMetadata, userMetadata} {
		if r, ok := fromMetadata(md); ok {
			return r
		}
	}
	return Default
}

func fromMetadata(md map[string]any) (Role, bool) {
	if md == nil {
		return Unknown, false
	}
	s, ok := md[MetadataKey].(string)
	if !ok {
		return Unknown, false
	}
	return Parse(s)
}

// IsValid returns true if r is one of the closed set.
// INVARIANT: r is not mutated
func (r Role) IsValid() bool {
	for _, v := range All {
		if v == r {
			return true
		}
	}
	return false
}

// Home returns the canonical dashboard route for the role.
func (r Role) Home() string {
	switch r {
	case Owner:
		return "/owner"
	case Trainer:
		return "/trainer"
	case Member:
		return "/member"
	default:
		return DefaultHome
	}
}

func (r Role) String() string {
	return string(r)
}

// Set is a set of roles declared by a route.
type Set map[Role]struct{}

// NewSet builds a Set from roles.
func NewSet(roles ...Role) Set {
	s := make(Set, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// Contains reports whether r is in the set.
func (s Set) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}
