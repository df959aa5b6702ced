package resource

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"gymdesk/internal/application/listutil"
	"gymdesk/internal/domain/apperr"
)

// Record is implemented by every resource record type.
type Record[T any] interface {
	Validate() error
	RecordID() string
	WithID(id string) T
}

// Recorder receives one observation per backend call.
type Recorder interface {
	RecordResourceCall(collection, op string, err error, d time.Duration)
}

// Page is one page of a list result.
type Page[T any] struct {
	Data       []T               `json:"data"`
	Pagination listutil.PageInfo `json:"pagination"`
}

// Client is typed CRUD access to one collection.
// Every error it returns belongs to the apperr taxonomy.
type Client[T Record[T]] struct {
	backend  Backend
	coll     Collection
	recorder Recorder
}

// NewClient creates a client for coll. recorder may be nil.
func NewClient[T Record[T]](backend Backend, coll Collection, recorder Recorder) *Client[T] {
	return &Client[T]{backend: backend, coll: coll, recorder: recorder}
}

// Collection returns the collection this client reads and writes.
func (c *Client[T]) Collection() Collection {
	return c.coll
}

// List returns one page of records matching f.
// PRE: none
// POST: page >= 1 and 1 <= limit <= 100 in the returned pagination
func (c *Client[T]) List(ctx context.Context, f Filters, page, limit int) (Page[T], error) {
	return c.list(ctx, f, page, limit, c.coll.DefaultOrder)
}

// Upcoming lists records in the collection's "upcoming" order (classes by title).
// An explicit f.Order still wins.
func (c *Client[T]) Upcoming(ctx context.Context, f Filters, page, limit int) (Page[T], error) {
	order := c.coll.UpcomingOrder
	if order == nil {
		order = c.coll.DefaultOrder
	}
	return c.list(ctx, f, page, limit, order)
}

// Count returns the number of records matching f.
func (c *Client[T]) Count(ctx context.Context, f Filters) (int, error) {
	p, err := c.list(ctx, f, 1, 1, c.coll.DefaultOrder)
	if err != nil {
		return 0, err
	}
	return p.Pagination.Total, nil
}

func (c *Client[T]) list(ctx context.Context, f Filters, page, limit int, order []Order) (Page[T], error) {
	page = listutil.ClampPage(page)
	limit = listutil.ClampLimit(limit)

	q, err := f.toQuery(c.coll, page, limit, order)
	if err != nil {
		return Page[T]{}, err
	}

	start := time.Now()
	docs, total, err := c.backend.List(ctx, c.coll.Name, q)
	c.observe("list", start, err)
	if err != nil {
		return Page[T]{}, c.fail("list", "", err)
	}

	data := make([]T, 0, len(docs))
	for _, doc := range docs {
		rec, err := c.decode(doc)
		if err != nil {
			return Page[T]{}, err
		}
		data = append(data, rec)
	}
	return Page[T]{Data: data, Pagination: listutil.NewPageInfo(page, limit, total)}, nil
}

// GetByID returns the record with id.
// POST: returns a NotFoundError naming the collection and id when absent
func (c *Client[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, apperr.Validation(FieldID, "id is required")
	}
	start := time.Now()
	doc, err := c.backend.Get(ctx, c.coll.Name, id)
	c.observe("get", start, err)
	if err != nil {
		return zero, c.fail("get", id, err)
	}
	return c.decode(doc)
}

// Create validates rec and inserts it. The backend assigns id and createdAt;
// any id or createdAt on rec is ignored.
// PRE: none
// POST: returns the stored record or a ValidationError naming the bad field
func (c *Client[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	if err := rec.Validate(); err != nil {
		return zero, apperr.Wrap(err)
	}
	doc, err := toDoc(rec)
	if err != nil {
		return zero, apperr.Server(err.Error())
	}
	for _, f := range immutableFields {
		delete(doc, f)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return zero, apperr.Server(err.Error())
	}

	start := time.Now()
	stored, err := c.backend.Insert(ctx, c.coll.Name, body)
	c.observe("create", start, err)
	if err != nil {
		return zero, c.fail("create", "", err)
	}
	return c.decode(stored)
}

// Update merges patch into the record with id.
// PRE: none
// POST: id and createdAt are unchanged; the merged record passed Validate
func (c *Client[T]) Update(ctx context.Context, id string, patch Patch) (T, error) {
	var zero T
	current, err := c.GetByID(ctx, id)
	if err != nil {
		return zero, err
	}
	patch = patch.Sanitized()
	if len(patch) == 0 {
		return current, nil
	}
	merged, err := ApplyPatch(current, patch)
	if err != nil {
		return zero, apperr.Validation("", "patch does not match the record shape")
	}
	if err := merged.Validate(); err != nil {
		return zero, apperr.Wrap(err)
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return zero, apperr.Server(err.Error())
	}

	start := time.Now()
	stored, err := c.backend.Update(ctx, c.coll.Name, id, body)
	c.observe("update", start, err)
	if err != nil {
		return zero, c.fail("update", id, err)
	}
	return c.decode(stored)
}

// Remove deletes the record with id.
// POST: a second Remove of the same id returns a NotFoundError
func (c *Client[T]) Remove(ctx context.Context, id string) error {
	if id == "" {
		return apperr.Validation(FieldID, "id is required")
	}
	start := time.Now()
	err := c.backend.Delete(ctx, c.coll.Name, id)
	c.observe("remove", start, err)
	if err != nil {
		return c.fail("remove", id, err)
	}
	return nil
}

func (c *Client[T]) decode(doc json.RawMessage) (T, error) {
	var rec T
	if err := json.Unmarshal(doc, &rec); err != nil {
		slog.Error("resource_error", "collection", c.coll.Name, "op", "decode", "error", err)
		return rec, apperr.Server("the backend returned an unreadable " + c.coll.Name + " record")
	}
	return rec, nil
}

func (c *Client[T]) observe(op string, start time.Time, err error) {
	if c.recorder != nil {
		c.recorder.RecordResourceCall(c.coll.Name, op, err, time.Since(start))
	}
}

// fail classifies a backend error and fills in NotFound details.
func (c *Client[T]) fail(op, id string, err error) error {
	classified := apperr.Wrap(err)
	if apperr.IsNotFound(classified) {
		return apperr.NotFound(c.coll.Name, id)
	}
	var se *apperr.ServerError
	if errors.As(classified, &se) {
		slog.Warn("resource_error", "collection", c.coll.Name, "op", op, "id", id, "error", err)
	}
	return classified
}
