package optimistic

import (
	"bytes"
	"context"
	"encoding/json"

	"gymdesk/internal/application/listutil"
	"gymdesk/internal/application/resource"
	"gymdesk/internal/domain/apperr"
)

// Source is the backend a Workspace loads from and writes through.
// *resource.Client satisfies it.
type Source[T any] interface {
	Mutator[T]
	Collection() resource.Collection
	List(ctx context.Context, f resource.Filters, page, limit int) (resource.Page[T], error)
	GetByID(ctx context.Context, id string) (T, error)
}

// Workspace is an untyped List over one collection, used where the
// collection is chosen at runtime (the owner CRUD routes).
type Workspace interface {
	Collection() resource.Collection
	Load(ctx context.Context, f resource.Filters, page, limit int) (Page, error)
	Get(ctx context.Context, id string) (any, error)
	CreateJSON(ctx context.Context, body []byte) (Result, error)
	Update(ctx context.Context, id string, patch resource.Patch) (Result, error)
	Remove(ctx context.Context, id string) (Result, error)
	Close()
}

// Page is one loaded page plus the workspace state around it.
type Page struct {
	Data       any               `json:"data"`
	Pagination listutil.PageInfo `json:"pagination"`
	Pending    []PendingMutation `json:"pending"`
	Error      string            `json:"listError,omitempty"`
}

// Result is the workspace state once a mutation settled.
type Result struct {
	Record     any    // stored record; nil after a delete or a failure
	Items      any    // local copy after settling
	Pending    []PendingMutation
	RolledBack bool   // a local change was applied and then reverted
	Err        string // the list's transient error
}

// reachedKey marks, per call, that the backend was contacted.
type reachedKey struct{}

func markReached(ctx context.Context) {
	if p, ok := ctx.Value(reachedKey{}).(*bool); ok {
		*p = true
	}
}

// tracking flags each backend call so rollbacks can be told apart from
// calls the list refused locally.
type tracking[T any] struct{ Mutator[T] }

func (m tracking[T]) Create(ctx context.Context, rec T) (T, error) {
	markReached(ctx)
	return m.Mutator.Create(ctx, rec)
}

func (m tracking[T]) Update(ctx context.Context, id string, patch resource.Patch) (T, error) {
	markReached(ctx)
	return m.Mutator.Update(ctx, id, patch)
}

func (m tracking[T]) Remove(ctx context.Context, id string) error {
	markReached(ctx)
	return m.Mutator.Remove(ctx, id)
}

type workspace[T Identifiable[T]] struct {
	src  Source[T]
	list *List[T]
}

// NewWorkspace creates an empty workspace over src. Load seeds it.
func NewWorkspace[T Identifiable[T]](src Source[T], opts ...Option) Workspace {
	return &workspace[T]{
		src:  src,
		list: New[T](src.Collection().Name, tracking[T]{src}, nil, opts...),
	}
}

func (w *workspace[T]) Collection() resource.Collection {
	return w.src.Collection()
}

// Load fetches a page and makes it the local copy.
// POST: mutations still in flight settle against the new copy
func (w *workspace[T]) Load(ctx context.Context, f resource.Filters, page, limit int) (Page, error) {
	p, err := w.src.List(ctx, f, page, limit)
	if err != nil {
		return Page{}, err
	}
	w.list.Replace(p.Data)
	return Page{
		Data:       w.items(),
		Pagination: p.Pagination,
		Pending:    w.list.Pending(),
		Error:      w.list.Err(),
	}, nil
}

func (w *workspace[T]) Get(ctx context.Context, id string) (any, error) {
	return w.src.GetByID(ctx, id)
}

// CreateJSON decodes body strictly and creates it optimistically. A draft
// that fails validation never enters the local copy.
func (w *workspace[T]) CreateJSON(ctx context.Context, body []byte) (Result, error) {
	var rec T
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return w.result(nil, false), apperr.Validation("", "invalid "+w.src.Collection().Name+" payload: "+err.Error())
	}
	if v, ok := any(rec).(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return w.result(nil, false), apperr.Wrap(err)
		}
	}

	reached := false
	stored, err := w.list.Create(context.WithValue(ctx, reachedKey{}, &reached), rec)
	if err != nil {
		return w.result(nil, reached), err
	}
	return w.result(stored, false), nil
}

// Update patches id. A record outside the local copy goes straight to the backend.
func (w *workspace[T]) Update(ctx context.Context, id string, patch resource.Patch) (Result, error) {
	if !w.list.Contains(id) {
		stored, err := w.src.Update(ctx, id, patch)
		if err != nil {
			return w.result(nil, false), err
		}
		return w.result(stored, false), nil
	}

	reached := false
	stored, err := w.list.Update(context.WithValue(ctx, reachedKey{}, &reached), id, patch)
	if err != nil {
		return w.result(nil, reached), err
	}
	return w.result(stored, false), nil
}

// Remove deletes id.
func (w *workspace[T]) Remove(ctx context.Context, id string) (Result, error) {
	local := w.list.Contains(id)
	reached := false
	if err := w.list.Remove(context.WithValue(ctx, reachedKey{}, &reached), id); err != nil {
		return w.result(nil, local && reached), err
	}
	return w.result(nil, false), nil
}

func (w *workspace[T]) Close() {
	w.list.Close()
}

func (w *workspace[T]) result(record any, rolledBack bool) Result {
	return Result{
		Record:     record,
		Items:      w.items(),
		Pending:    w.list.Pending(),
		RolledBack: rolledBack,
		Err:        w.list.Err(),
	}
}

// items is the local copy, never nil so it encodes as [].
func (w *workspace[T]) items() []T {
	items := w.list.Items()
	if items == nil {
		items = []T{}
	}
	return items
}
