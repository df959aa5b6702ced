package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/class"
	"gymdesk/internal/domain/member"
)

// --- Mock backend ---

type mockBackend struct {
	lastQuery Query
	docs      []json.RawMessage
	total     int
	doc       json.RawMessage
	inserted  json.RawMessage
	patched   json.RawMessage
	err       error
}

func (m *mockBackend) List(_ context.Context, _ string, q Query) ([]json.RawMessage, int, error) {
	m.lastQuery = q
	return m.docs, m.total, m.err
}

func (m *mockBackend) Get(_ context.Context, _, _ string) (json.RawMessage, error) {
	return m.doc, m.err
}

func (m *mockBackend) Insert(_ context.Context, _ string, doc json.RawMessage) (json.RawMessage, error) {
	m.inserted = doc
	if m.err != nil {
		return nil, m.err
	}
	out := map[string]any{}
	_ = json.Unmarshal(doc, &out)
	out["id"] = "srv-1"
	out["createdAt"] = "2026-03-01T09:00:00Z"
	return json.Marshal(out)
}

func (m *mockBackend) Update(_ context.Context, _, _ string, patch json.RawMessage) (json.RawMessage, error) {
	m.patched = patch
	if m.err != nil {
		return nil, m.err
	}
	doc := map[string]any{}
	_ = json.Unmarshal(m.doc, &doc)
	p := map[string]any{}
	_ = json.Unmarshal(patch, &p)
	return json.Marshal(MergePatch(doc, p))
}

func (m *mockBackend) Delete(_ context.Context, _, _ string) error {
	return m.err
}

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("backend said %d", e.code) }
func (e statusErr) StatusCode() int { return e.code }

type recorderSpy struct{ ops []string }

func (r *recorderSpy) RecordResourceCall(collection, op string, _ error, _ time.Duration) {
	r.ops = append(r.ops, collection+"."+op)
}

func memberDoc(id, name string) json.RawMessage {
	b, _ := json.Marshal(member.Member{ID: id, Name: name, Email: name + "@example.com", Status: member.StatusActive})
	return b
}

// TestList_ClampsPageAndLimit verifies page/limit clamping and pagination metadata.
func TestList_ClampsPageAndLimit(t *testing.T) {
	tests := []struct {
		name                string
		page, limit         int
		wantPage, wantLimit int
		wantOffset          int
	}{
		{"defaults", 0, 0, 1, 20, 0},
		{"negative page", -3, 10, 1, 10, 0},
		{"over max", 2, 500, 2, 100, 100},
		{"in range", 3, 25, 3, 25, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &mockBackend{total: 1000}
			c := NewClient[member.Member](b, Members, nil)
			page, err := c.List(context.Background(), Filters{}, tt.page, tt.limit)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if page.Pagination.Page != tt.wantPage || page.Pagination.Limit != tt.wantLimit {
				t.Errorf("pagination = %+v", page.Pagination)
			}
			if b.lastQuery.Offset != tt.wantOffset || b.lastQuery.Limit != tt.wantLimit {
				t.Errorf("query offset/limit = %d/%d", b.lastQuery.Offset, b.lastQuery.Limit)
			}
			if !page.Pagination.HasNext {
				t.Error("expected HasNext with 1000 rows")
			}
		})
	}
}

// TestList_BuildsQuery verifies filters translate into backend conditions.
func TestList_BuildsQuery(t *testing.T) {
	b := &mockBackend{docs: []json.RawMessage{memberDoc("m1", "alice")}, total: 1}
	c := NewClient[member.Member](b, Members, nil)

	f := Filters{Search: " ali "}.
		Where("status", "active").
		Where("id", "m1", "m2").
		Within(Range{Field: "createdAt", From: "2026-01-01"})
	page, err := c.List(context.Background(), f, 1, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != "m1" {
		t.Fatalf("unexpected data %+v", page.Data)
	}

	q := b.lastQuery
	want := []Condition{
		{Field: "id", Op: OpIn, Values: []any{"m1", "m2"}},
		{Field: "status", Op: OpEq, Values: []any{"active"}},
		{Field: "createdAt", Op: OpGte, Values: []any{"2026-01-01"}},
	}
	if fmt.Sprint(q.Conditions) != fmt.Sprint(want) {
		t.Errorf("conditions = %v, want %v", q.Conditions, want)
	}
	if q.Search != "ali" || len(q.SearchFields) != 3 {
		t.Errorf("search = %q over %v", q.Search, q.SearchFields)
	}
	if len(q.Order) != 1 || q.Order[0] != (Order{Field: "createdAt", Desc: true}) {
		t.Errorf("default order = %v", q.Order)
	}
}

// TestList_RejectsUndeclaredFields verifies filters outside the descriptor fail validation.
func TestList_RejectsUndeclaredFields(t *testing.T) {
	c := NewClient[member.Member](&mockBackend{}, Members, nil)
	ctx := context.Background()

	cases := []Filters{
		Filters{}.Where("passwordHash", "x"),
		Filters{}.Within(Range{Field: "amount", From: int64(1)}),
		Filters{}.OrderBy("phone", false),
	}
	for _, f := range cases {
		if _, err := c.List(ctx, f, 1, 10); !apperr.IsValidation(err) {
			t.Errorf("filters %+v: expected ValidationError, got %v", f, err)
		}
	}
}

// TestUpcoming_OrdersClassesByTitle verifies the upcoming ordering.
func TestUpcoming_OrdersClassesByTitle(t *testing.T) {
	b := &mockBackend{}
	c := NewClient[class.Class](b, Classes, nil)
	if _, err := c.Upcoming(context.Background(), Filters{}, 1, 10); err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if len(b.lastQuery.Order) != 1 || b.lastQuery.Order[0] != (Order{Field: "title"}) {
		t.Errorf("order = %v, want title asc", b.lastQuery.Order)
	}
}

// TestErrors_AreClassified verifies raw backend errors never escape.
func TestErrors_AreClassified(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"unauthorized", statusErr{http.StatusUnauthorized}, apperr.IsUnauthorized},
		{"not found", statusErr{http.StatusNotFound}, apperr.IsNotFound},
		{"conflict", statusErr{http.StatusConflict}, apperr.IsConflict},
		{"plain", errors.New("connection reset"), func(err error) bool {
			var se *apperr.ServerError
			return errors.As(err, &se) && se.Message == "connection reset"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient[member.Member](&mockBackend{err: tt.err}, Members, nil)
			_, err := c.GetByID(context.Background(), "m1")
			if !tt.check(err) {
				t.Errorf("unexpected classification %T: %v", err, err)
			}
			if errors.Is(err, tt.err) {
				t.Error("raw backend error leaked")
			}
		})
	}
}

// TestGetByID_NotFoundNamesRecord verifies the NotFound details.
func TestGetByID_NotFoundNamesRecord(t *testing.T) {
	c := NewClient[member.Member](&mockBackend{err: statusErr{http.StatusNotFound}}, Members, nil)
	_, err := c.GetByID(context.Background(), "m9")
	if err == nil || err.Error() != "member m9 not found" {
		t.Errorf("err = %v", err)
	}
}

// TestCreate_StripsServerFields verifies id and createdAt are never sent.
func TestCreate_StripsServerFields(t *testing.T) {
	b := &mockBackend{}
	rec := &recorderSpy{}
	c := NewClient[member.Member](b, Members, rec)

	in := member.Member{ID: "temp-1", Name: "Eve", Email: "eve@example.com", Status: member.StatusActive, CreatedAt: time.Now()}
	out, err := c.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sent := map[string]any{}
	_ = json.Unmarshal(b.inserted, &sent)
	if _, ok := sent["id"]; ok {
		t.Error("id should not be sent")
	}
	if _, ok := sent["createdAt"]; ok {
		t.Error("createdAt should not be sent")
	}
	if out.ID != "srv-1" || out.CreatedAt.IsZero() {
		t.Errorf("unexpected result %+v", out)
	}
	if len(rec.ops) != 1 || rec.ops[0] != "members.create" {
		t.Errorf("recorded ops = %v", rec.ops)
	}
}

// TestCreate_ValidationNamesField verifies validation errors surface the field.
func TestCreate_ValidationNamesField(t *testing.T) {
	b := &mockBackend{}
	c := NewClient[member.Member](b, Members, nil)
	_, err := c.Create(context.Background(), member.Member{Name: "NoEmail", Status: member.StatusActive})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) || ve.Field != "email" {
		t.Fatalf("expected email ValidationError, got %v", err)
	}
	if b.inserted != nil {
		t.Error("invalid record should not reach the backend")
	}
}

// TestUpdate_ValidatesMergedRecord verifies a patch that breaks validation is refused.
func TestUpdate_ValidatesMergedRecord(t *testing.T) {
	b := &mockBackend{doc: memberDoc("m1", "alice")}
	c := NewClient[member.Member](b, Members, nil)

	if _, err := c.Update(context.Background(), "m1", Patch{"status": "frozen"}); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if b.patched != nil {
		t.Error("invalid patch should not reach the backend")
	}

	got, err := c.Update(context.Background(), "m1", Patch{"phone": "555", "id": "other"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.ID != "m1" || got.Phone != "555" {
		t.Errorf("unexpected result %+v", got)
	}
	if string(b.patched) != `{"phone":"555"}` {
		t.Errorf("patch sent = %s", b.patched)
	}
}
