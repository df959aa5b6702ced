package optimistic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gymdesk/internal/application/listutil"
	"gymdesk/internal/application/resource"
	"gymdesk/internal/domain/apperr"
)

// fakeSource serves a fixed page and mutates through mockMutator.
type fakeSource struct {
	*mockMutator
	page []item
}

func (s *fakeSource) Collection() resource.Collection {
	return resource.Collection{Name: "members"}
}

func (s *fakeSource) List(_ context.Context, _ resource.Filters, page, limit int) (resource.Page[item], error) {
	return resource.Page[item]{Data: s.page, Pagination: listutil.NewPageInfo(page, limit, len(s.page))}, nil
}

func (s *fakeSource) GetByID(_ context.Context, id string) (item, error) {
	for _, it := range s.page {
		if it.ID == id {
			return it, nil
		}
	}
	return item{}, apperr.NotFound("members", id)
}

func loaded(t *testing.T, src *fakeSource, opts ...Option) Workspace {
	t.Helper()
	ws := NewWorkspace[item](src, opts...)
	if _, err := ws.Load(context.Background(), resource.Filters{}, 1, 10); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return ws
}

// TestWorkspace_LoadSeedsWorkingCopy verifies the loaded page becomes the local copy.
func TestWorkspace_LoadSeedsWorkingCopy(t *testing.T) {
	ws := NewWorkspace[item](&fakeSource{mockMutator: &mockMutator{}, page: seed()})

	p, err := ws.Load(context.Background(), resource.Filters{}, 1, 10)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := p.Data.([]item); len(got) != 3 || p.Pagination.Total != 3 {
		t.Errorf("page = %+v", p)
	}
	if p.Pending == nil || len(p.Pending) != 0 || p.Error != "" {
		t.Errorf("unexpected state pending=%v error=%q", p.Pending, p.Error)
	}
}

// TestWorkspace_EmptyLoadEncodesList verifies an empty page is [] rather than nil.
func TestWorkspace_EmptyLoadEncodesList(t *testing.T) {
	ws := NewWorkspace[item](&fakeSource{mockMutator: &mockMutator{}})
	p, err := ws.Load(context.Background(), resource.Filters{}, 1, 10)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, ok := p.Data.([]item); !ok || got == nil {
		t.Errorf("Data = %#v, want an empty slice", p.Data)
	}
}

func TestWorkspace_Rollbacks(t *testing.T) {
	fail := apperr.Server("backend unavailable")
	tests := []struct {
		name         string
		call         func(Workspace) (Result, error)
		wantBack     bool
		wantItems    int
		wantRollback []string
	}{
		{
			name:         "create",
			call:         func(ws Workspace) (Result, error) { return ws.CreateJSON(context.Background(), []byte(`{"name":"Dee"}`)) },
			wantBack:     true,
			wantItems:    3,
			wantRollback: []string{"members/create"},
		},
		{
			name:         "updateLocal",
			call:         func(ws Workspace) (Result, error) { return ws.Update(context.Background(), "a", resource.Patch{"name": "Zed"}) },
			wantBack:     true,
			wantItems:    3,
			wantRollback: []string{"members/update"},
		},
		{
			name:         "removeLocal",
			call:         func(ws Workspace) (Result, error) { return ws.Remove(context.Background(), "b") },
			wantBack:     true,
			wantItems:    3,
			wantRollback: []string{"members/delete"},
		},
		{
			name:      "updateElsewhere",
			call:      func(ws Workspace) (Result, error) { return ws.Update(context.Background(), "zz", resource.Patch{"name": "Zed"}) },
			wantItems: 3,
		},
		{
			name:      "removeElsewhere",
			call:      func(ws Workspace) (Result, error) { return ws.Remove(context.Background(), "zz") },
			wantItems: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &rollbackSpy{}
			ws := loaded(t, &fakeSource{mockMutator: &mockMutator{err: fail}, page: seed()}, WithRecorder(spy))

			res, err := tt.call(ws)
			if !errors.Is(err, fail) && apperr.Message(err) != "backend unavailable" {
				t.Fatalf("err = %v, want the backend failure", err)
			}
			if res.RolledBack != tt.wantBack {
				t.Errorf("RolledBack = %v, want %v", res.RolledBack, tt.wantBack)
			}
			if got := res.Items.([]item); len(got) != tt.wantItems {
				t.Errorf("items = %v", names(got))
			}
			if res.Record != nil || len(res.Pending) != 0 {
				t.Errorf("record=%v pending=%v", res.Record, res.Pending)
			}
			if len(spy.ops) != len(tt.wantRollback) || (len(spy.ops) > 0 && spy.ops[0] != tt.wantRollback[0]) {
				t.Errorf("rollbacks = %v, want %v", spy.ops, tt.wantRollback)
			}
		})
	}
}

// TestWorkspace_InvalidDraftStaysLocal verifies decode errors never reach the list or backend.
func TestWorkspace_InvalidDraftStaysLocal(t *testing.T) {
	m := &mockMutator{}
	ws := loaded(t, &fakeSource{mockMutator: m, page: seed()})

	res, err := ws.CreateJSON(context.Background(), []byte(`{"name":"Dee","nickname":"D"}`))
	if !apperr.IsValidation(err) {
		t.Fatalf("err = %v, want a validation error", err)
	}
	if res.RolledBack || m.calls != 0 {
		t.Errorf("rolledBack=%v calls=%d", res.RolledBack, m.calls)
	}
}

// TestWorkspace_Success verifies stored records replace local ones.
func TestWorkspace_Success(t *testing.T) {
	ws := loaded(t, &fakeSource{mockMutator: &mockMutator{}, page: seed()}, fixedTempIDs())
	ctx := context.Background()

	res, err := ws.CreateJSON(ctx, []byte(`{"name":"Dee"}`))
	if err != nil {
		t.Fatalf("CreateJSON: %v", err)
	}
	if rec := res.Record.(item); rec.ID != "srv-Dee" {
		t.Errorf("record = %+v", rec)
	}

	res, err = ws.Update(ctx, "a", resource.Patch{"name": "Ada"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rec := res.Record.(item); rec.Name != "Ada" || rec.Note != "stored" {
		t.Errorf("record = %+v", rec)
	}

	res, err = ws.Remove(ctx, "b")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	want := "srv-Dee:Dee,a:Ada,c:Cal"
	if got := strings.Join(names(res.Items.([]item)), ","); got != want {
		t.Errorf("items = %s, want %s", got, want)
	}
}

// TestWorkspace_CloseDetaches verifies a closed workspace refuses new creates.
func TestWorkspace_CloseDetaches(t *testing.T) {
	ws := loaded(t, &fakeSource{mockMutator: &mockMutator{}, page: seed()})
	ws.Close()

	if _, err := ws.CreateJSON(context.Background(), []byte(`{"name":"Dee"}`)); !apperr.IsConflict(err) {
		t.Errorf("err = %v, want a conflict", err)
	}
}
