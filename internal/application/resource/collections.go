package resource

import "slices"

// Collection describes one backend collection and the fields a list may use.
type Collection struct {
	Name         string
	SearchFields []string // free-text search targets
	FilterFields []string // equality and one-of filters
	RangeFields  []string // gte/lte filters; the first one is the default range
	SortFields   []string
	DefaultOrder []Order
	// UpcomingOrder is the ordering used by Client.Upcoming; nil falls back to DefaultOrder.
	UpcomingOrder []Order
}

// Field names shared by every collection.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldStatus    = "status"
)

var newestFirst = []Order{{Field: FieldCreatedAt, Desc: true}}

// The six collections.
var (
	Members = Collection{
		Name:         "members",
		SearchFields: []string{"name", "email", "phone"},
		FilterFields: []string{FieldID, FieldStatus, "planId", "accountId", "email"},
		RangeFields:  []string{FieldCreatedAt},
		SortFields:   []string{FieldCreatedAt, "name", "email"},
		DefaultOrder: newestFirst,
	}
	Trainers = Collection{
		Name:         "trainers",
		SearchFields: []string{"name", "email", "specialty"},
		FilterFields: []string{FieldID, FieldStatus, "accountId", "email"},
		RangeFields:  []string{FieldCreatedAt},
		SortFields:   []string{FieldCreatedAt, "name"},
		DefaultOrder: newestFirst,
	}
	Classes = Collection{
		Name:          "classes",
		SearchFields:  []string{"title", "description"},
		FilterFields:  []string{FieldID, "trainerId", "programId", "day"},
		RangeFields:   []string{"startsAt", FieldCreatedAt, "capacity"},
		SortFields:    []string{FieldCreatedAt, "title", "startsAt", "capacity"},
		DefaultOrder:  newestFirst,
		UpcomingOrder: []Order{{Field: "title"}},
	}
	Bookings = Collection{
		Name:         "bookings",
		FilterFields: []string{FieldID, FieldStatus, "memberId", "classId"},
		RangeFields:  []string{FieldCreatedAt},
		SortFields:   []string{FieldCreatedAt},
		DefaultOrder: newestFirst,
	}
	Programs = Collection{
		Name:         "programs",
		SearchFields: []string{"name", "description"},
		FilterFields: []string{FieldID, "level"},
		RangeFields:  []string{FieldCreatedAt, "durationWeeks"},
		SortFields:   []string{FieldCreatedAt, "name", "durationWeeks"},
		DefaultOrder: newestFirst,
	}
	Payments = Collection{
		Name:         "payments",
		SearchFields: []string{"planId", "currency"},
		FilterFields: []string{FieldID, FieldStatus, "memberId", "planId", "currency"},
		RangeFields:  []string{FieldCreatedAt, "amount", "paidAt"},
		SortFields:   []string{FieldCreatedAt, "amount", "paidAt"},
		DefaultOrder: newestFirst,
	}
)

// Collections lists every collection, keyed by name.
var Collections = map[string]Collection{
	Members.Name:  Members,
	Trainers.Name: Trainers,
	Classes.Name:  Classes,
	Bookings.Name: Bookings,
	Programs.Name: Programs,
	Payments.Name: Payments,
}

// Lookup returns the collection named name.
func Lookup(name string) (Collection, bool) {
	c, ok := Collections[name]
	return c, ok
}

// DefaultRange returns the field from/to bounds apply to when none is named.
func (c Collection) DefaultRange() string {
	if len(c.RangeFields) == 0 {
		return ""
	}
	return c.RangeFields[0]
}

func (c Collection) canFilter(field string) bool { return slices.Contains(c.FilterFields, field) }
func (c Collection) canRange(field string) bool  { return slices.Contains(c.RangeFields, field) }
func (c Collection) canSort(field string) bool   { return slices.Contains(c.SortFields, field) }
