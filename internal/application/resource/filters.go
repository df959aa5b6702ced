package resource

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"gymdesk/internal/domain/apperr"
)

// Filters is the caller-facing list request.
// The zero value lists everything in the collection's default order.
type Filters struct {
	Equal  map[string][]string // field -> accepted values; one value is an equality test
	Search string
	Ranges []Range
	Order  []Order
}

// Range bounds a field; a nil bound is open.
type Range struct {
	Field       string
	From        any
	To          any
	ToExclusive bool // To is a strict upper bound
}

// numericFields compare as numbers rather than text.
var numericFields = []string{"amount", "capacity", "durationWeeks"}

// Where returns a copy of f that also requires field to equal one of values.
func (f Filters) Where(field string, values ...string) Filters {
	eq := maps.Clone(f.Equal)
	if eq == nil {
		eq = map[string][]string{}
	}
	eq[field] = slices.Clone(values)
	f.Equal = eq
	return f
}

// Within returns a copy of f also bounded by r.
func (f Filters) Within(r Range) Filters {
	f.Ranges = append(slices.Clone(f.Ranges), r)
	return f
}

// OrderBy returns a copy of f ordered by field, replacing any earlier ordering.
func (f Filters) OrderBy(field string, desc bool) Filters {
	f.Order = []Order{{Field: field, Desc: desc}}
	return f
}

// ParseBound converts a textual bound for field into the type the backend
// compares with. Empty input is an open bound.
func ParseBound(field, s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !slices.Contains(numericFields, field) {
		return s, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, apperr.Validation(field, fmt.Sprintf("%s must be a whole number", field))
	}
	return n, nil
}

// dateLayout is a calendar date without a time of day.
const dateLayout = "2006-01-02"

// instantLayout matches the stored timestamp text, so bounds compare
// correctly as strings as well as timestamps.
const instantLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ParseRange builds the range on field from textual bounds. A bare date as
// the upper bound covers that whole day: it becomes an exclusive bound at the
// following midnight, UTC.
func ParseRange(field, from, to string) (Range, error) {
	lo, err := ParseBound(field, from)
	if err != nil {
		return Range{}, err
	}
	hi, err := ParseBound(field, to)
	if err != nil {
		return Range{}, err
	}
	r := Range{Field: field, From: lo, To: hi}
	if s, ok := hi.(string); ok {
		if day, err := time.Parse(dateLayout, s); err == nil {
			r.To = day.AddDate(0, 0, 1).UTC().Format(instantLayout)
			r.ToExclusive = true
		}
	}
	return r, nil
}

// toQuery validates f against c and builds the backend query.
// PRE: page and limit have been clamped
// POST: every referenced field is declared by c, or a ValidationError is returned
func (f Filters) toQuery(c Collection, page, limit int, fallbackOrder []Order) (Query, error) {
	q := Query{
		Offset: (page - 1) * limit,
		Limit:  limit,
	}

	fields := slices.Sorted(maps.Keys(f.Equal))
	for _, field := range fields {
		values := f.Equal[field]
		if !c.canFilter(field) {
			return Query{}, apperr.Validation(field, fmt.Sprintf("%s cannot be filtered by %s", c.Name, field))
		}
		switch len(values) {
		case 0:
			continue
		case 1:
			q.Conditions = append(q.Conditions, Condition{Field: field, Op: OpEq, Values: []any{values[0]}})
		default:
			anyValues := make([]any, len(values))
			for i, v := range values {
				anyValues[i] = v
			}
			q.Conditions = append(q.Conditions, Condition{Field: field, Op: OpIn, Values: anyValues})
		}
	}

	for _, r := range f.Ranges {
		if !c.canRange(r.Field) {
			return Query{}, apperr.Validation(r.Field, fmt.Sprintf("%s cannot be ranged by %s", c.Name, r.Field))
		}
		if r.From != nil {
			q.Conditions = append(q.Conditions, Condition{Field: r.Field, Op: OpGte, Values: []any{r.From}})
		}
		if r.To != nil {
			op := OpLte
			if r.ToExclusive {
				op = OpLt
			}
			q.Conditions = append(q.Conditions, Condition{Field: r.Field, Op: op, Values: []any{r.To}})
		}
	}

	if term := strings.TrimSpace(f.Search); term != "" && len(c.SearchFields) > 0 {
		q.Search = term
		q.SearchFields = slices.Clone(c.SearchFields)
	}

	order := f.Order
	if len(order) == 0 {
		order = fallbackOrder
	}
	for _, o := range order {
		if !c.canSort(o.Field) {
			return Query{}, apperr.Validation(o.Field, fmt.Sprintf("%s cannot be sorted by %s", c.Name, o.Field))
		}
	}
	q.Order = slices.Clone(order)
	return q, nil
}
