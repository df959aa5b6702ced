// Package resource is the typed CRUD client over the six backend collections.
package resource

import (
	"context"
	"encoding/json"
)

// Op is a filter operator understood by every Backend.
type Op string

// Filter operators.
const (
	OpEq  Op = "eq"
	OpIn  Op = "in"
	OpGte Op = "gte"
	OpLte Op = "lte"
	OpLt  Op = "lt"
)

// Condition restricts a list to documents whose Field matches Values.
// Eq, Gte, Lte and Lt read Values[0]; In matches any of Values.
type Condition struct {
	Field  string
	Op     Op
	Values []any
}

// Order sorts a list by Field.
type Order struct {
	Field string
	Desc  bool
}

// Query is the backend-neutral form of a list request.
type Query struct {
	Conditions   []Condition
	Search       string   // case-insensitive substring, OR-ed across SearchFields
	SearchFields []string
	Order        []Order
	Offset       int
	Limit        int
}

// Backend is the resource backend boundary. Documents are JSON objects
// carrying at least "id" and "createdAt". Implementations return raw
// errors; the Client classifies them.
type Backend interface {
	// List returns one page of documents and the total match count.
	List(ctx context.Context, collection string, q Query) ([]json.RawMessage, int, error)
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	// Insert stores doc and returns it with the server-assigned id and createdAt.
	Insert(ctx context.Context, collection string, doc json.RawMessage) (json.RawMessage, error)
	// Update merges patch into the stored document and returns the result.
	Update(ctx context.Context, collection, id string, patch json.RawMessage) (json.RawMessage, error)
	Delete(ctx context.Context, collection, id string) error
}
