// Package optimistic applies CRUD mutations to a local list first and
// reconciles with the backend when the call settles.
package optimistic

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"gymdesk/internal/application/resource"
	"gymdesk/internal/domain/apperr"
)

// TempIDPrefix marks ids synthesised for records the backend has not stored yet.
const TempIDPrefix = "temp-"

// Operation is the kind of a pending mutation.
type Operation string

// Operations.
const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// PendingMutation is an optimistic change awaiting the backend. Never persisted.
type PendingMutation struct {
	TempID    string    `json:"tempId"`            // the record's local id; a temp id for creates
	Payload   any       `json:"payload,omitempty"` // the draft for creates, the patch for updates, nil for deletes
	Operation Operation `json:"operation"`
}

// Identifiable is implemented by every record type.
type Identifiable[T any] interface {
	RecordID() string
	WithID(id string) T
}

// Mutator is the backend side of the list. *resource.Client satisfies it.
type Mutator[T any] interface {
	Create(ctx context.Context, rec T) (T, error)
	Update(ctx context.Context, id string, patch resource.Patch) (T, error)
	Remove(ctx context.Context, id string) error
}

// Recorder counts rollbacks.
type Recorder interface {
	RecordRollback(collection, op string)
}

// Option configures a List.
type Option func(*options)

type options struct {
	recorder  Recorder
	newTempID func() string
}

// WithRecorder attaches a rollback counter.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithTempIDs overrides temp id generation.
func WithTempIDs(fn func() string) Option {
	return func(o *options) { o.newTempID = fn }
}

// List is a locally owned working copy of one collection page.
// INVARIANT: at most one pending mutation per record id
type List[T Identifiable[T]] struct {
	name    string
	mutator Mutator[T]
	opts    options

	mu        sync.Mutex
	items     []T
	pending   map[string]PendingMutation
	version   uint64 // bumped by every local change
	closed    bool
	errMsg    string
	listeners map[int]func([]T)
	nextID    int
}

// New creates a List over initial items. name labels errors and metrics.
func New[T Identifiable[T]](name string, mutator Mutator[T], initial []T, opts ...Option) *List[T] {
	o := options{newTempID: func() string { return TempIDPrefix + uuid.NewString() }}
	for _, opt := range opts {
		opt(&o)
	}
	return &List[T]{
		name:      name,
		mutator:   mutator,
		opts:      o,
		items:     slices.Clone(initial),
		pending:   map[string]PendingMutation{},
		listeners: map[int]func([]T){},
	}
}

// Items returns a copy of the local list.
func (l *List[T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.items)
}

// Pending returns the in-flight mutations.
func (l *List[T]) Pending() []PendingMutation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]PendingMutation, 0, len(l.pending))
	for _, p := range l.pending {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b PendingMutation) int {
		if a.TempID < b.TempID {
			return -1
		}
		if a.TempID > b.TempID {
			return 1
		}
		return 0
	})
	return out
}

// IsPending reports whether id has a mutation in flight.
func (l *List[T]) IsPending(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[id]
	return ok
}

// Contains reports whether id is in the local copy.
func (l *List[T]) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.indexOf(id) >= 0
}

// Err returns the last transient error message, or "".
func (l *List[T]) Err() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errMsg
}

// ClearErr dismisses the transient error.
func (l *List[T]) ClearErr() {
	l.mu.Lock()
	l.errMsg = ""
	l.mu.Unlock()
}

// Replace swaps the local copy for a freshly loaded one.
// Pending mutations still settle against the new copy.
func (l *List[T]) Replace(items []T) {
	l.mu.Lock()
	l.items = slices.Clone(items)
	l.version++
	snap := slices.Clone(l.items)
	l.mu.Unlock()
	l.notify(snap)
}

// Close detaches the list. Calls that settle afterwards leave local state alone.
func (l *List[T]) Close() {
	l.mu.Lock()
	l.closed = true
	clear(l.listeners)
	l.mu.Unlock()
}

// OnChange registers fn to receive the list after every local change.
func (l *List[T]) OnChange(fn func([]T)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

// Create prepends draft under a temp id, then stores it.
// POST: on success the temp record is replaced in place by the stored record;
// on failure only the temp record is removed
func (l *List[T]) Create(ctx context.Context, draft T) (T, error) {
	var zero T
	tempID := l.opts.newTempID()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return zero, apperr.Conflict("this list is no longer active")
	}
	l.items = append([]T{draft.WithID(tempID)}, l.items...)
	l.pending[tempID] = PendingMutation{TempID: tempID, Payload: draft, Operation: OpCreate}
	l.errMsg = ""
	l.version++
	snap := slices.Clone(l.items)
	l.mu.Unlock()
	l.notify(snap)

	stored, err := l.mutator.Create(ctx, draft.WithID(""))
	err = apperr.Wrap(err)

	l.settle(tempID, OpCreate, err, func() {
		i := l.indexOf(tempID)
		if i < 0 {
			return
		}
		if err != nil {
			l.items = slices.Delete(l.items, i, i+1)
			return
		}
		l.items[i] = stored
	})
	if err != nil {
		return zero, err
	}
	return stored, nil
}

// Update applies patch locally, then stores it.
// POST: on failure the record is restored to its exact pre-mutation value
func (l *List[T]) Update(ctx context.Context, id string, patch resource.Patch) (T, error) {
	var zero T

	l.mu.Lock()
	if err := l.guardLocked(id); err != nil {
		l.mu.Unlock()
		return zero, err
	}
	i := l.indexOf(id)
	if i < 0 {
		l.mu.Unlock()
		return zero, apperr.NotFound(l.name, id)
	}
	before := l.items[i]
	after, err := resource.ApplyPatch(before, patch)
	if err != nil {
		l.mu.Unlock()
		return zero, apperr.Validation("", "patch does not match the record shape")
	}
	l.items[i] = after
	l.pending[id] = PendingMutation{TempID: id, Payload: patch, Operation: OpUpdate}
	l.errMsg = ""
	l.version++
	snap := slices.Clone(l.items)
	l.mu.Unlock()
	l.notify(snap)

	stored, err := l.mutator.Update(ctx, id, patch)
	err = apperr.Wrap(err)

	l.settle(id, OpUpdate, err, func() {
		j := l.indexOf(id)
		if j < 0 {
			return
		}
		if err != nil {
			l.items[j] = before
			return
		}
		l.items[j] = stored
	})
	if err != nil {
		return zero, err
	}
	return stored, nil
}

// Remove drops the record locally, then deletes it.
// POST: on failure the prior list is restored; a record absent locally is
// still sent to the backend and its error returned without touching local state
func (l *List[T]) Remove(ctx context.Context, id string) error {
	l.mu.Lock()
	if err := l.guardLocked(id); err != nil {
		l.mu.Unlock()
		return err
	}
	i := l.indexOf(id)
	if i < 0 {
		l.mu.Unlock()
		err := apperr.Wrap(l.mutator.Remove(ctx, id))
		if err != nil {
			l.mu.Lock()
			if !l.closed {
				l.errMsg = err.Error()
			}
			l.mu.Unlock()
		}
		return err
	}
	before := slices.Clone(l.items)
	removed := l.items[i]
	l.items = slices.Delete(l.items, i, i+1)
	l.pending[id] = PendingMutation{TempID: id, Operation: OpDelete}
	l.errMsg = ""
	l.version++
	version := l.version
	snap := slices.Clone(l.items)
	l.mu.Unlock()
	l.notify(snap)

	err := apperr.Wrap(l.mutator.Remove(ctx, id))

	l.settle(id, OpDelete, err, func() {
		if err == nil {
			return
		}
		if l.version == version {
			l.items = before
			return
		}
		// Other records changed meanwhile; put this one back where it was.
		at := min(i, len(l.items))
		l.items = slices.Insert(l.items, at, removed)
	})
	return err
}

// guardLocked refuses a second mutation on a record or any mutation after Close.
// PRE: l.mu is held
func (l *List[T]) guardLocked(id string) error {
	if l.closed {
		return apperr.Conflict("this list is no longer active")
	}
	if _, busy := l.pending[id]; busy {
		return apperr.Conflict("a change to this record is already in progress")
	}
	return nil
}

// settle clears the pending entry and, unless the list was closed, applies
// the reconciliation and surfaces err.
func (l *List[T]) settle(id string, op Operation, err error, reconcile func()) {
	l.mu.Lock()
	delete(l.pending, id)
	if l.closed {
		l.mu.Unlock()
		return
	}
	reconcile()
	l.version++
	if err != nil {
		l.errMsg = err.Error()
	}
	snap := slices.Clone(l.items)
	l.mu.Unlock()

	if err != nil {
		slog.Info("optimistic_rollback", "collection", l.name, "op", string(op), "id", id, "error", err)
		if l.opts.recorder != nil {
			l.opts.recorder.RecordRollback(l.name, string(op))
		}
	}
	l.notify(snap)
}

// indexOf returns the position of id, or -1.
// PRE: l.mu is held
func (l *List[T]) indexOf(id string) int {
	return slices.IndexFunc(l.items, func(v T) bool { return v.RecordID() == id })
}

func (l *List[T]) notify(items []T) {
	l.mu.Lock()
	fns := make([]func([]T), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(slices.Clone(items))
	}
}
