package collection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"gymdesk/internal/adapters/storage"
	"gymdesk/internal/application/resource"
	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/booking"
	"gymdesk/internal/domain/member"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	s := NewSQLiteStore(db)
	n := 0
	s.GenerateID = func() string {
		n++
		return fmt.Sprintf("id-%02d", n)
	}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.Now = func() time.Time {
		return base.Add(time.Duration(n) * time.Minute)
	}
	return s
}

func mustInsert(t *testing.T, s *SQLiteStore, collection string, doc map[string]any) map[string]any {
	t.Helper()
	b, _ := json.Marshal(doc)
	out, err := s.Insert(context.Background(), collection, b)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	stored := map[string]any{}
	if err := json.Unmarshal(out, &stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return stored
}

func ids(t *testing.T, docs []json.RawMessage) []string {
	t.Helper()
	var out []string
	for _, d := range docs {
		var v struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(d, &v); err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, v.ID)
	}
	return out
}

func seedMembers(t *testing.T, s *SQLiteStore) {
	t.Helper()
	mustInsert(t, s, "members", map[string]any{"name": "Alice Smith", "email": "alice@example.com", "status": "active"})
	mustInsert(t, s, "members", map[string]any{"name": "Bob Jones", "email": "bob@example.com", "status": "inactive"})
	mustInsert(t, s, "members", map[string]any{"name": "Carol ALISON", "email": "carol@example.com", "status": "active"})
	mustInsert(t, s, "trainers", map[string]any{"name": "Alice Coach", "email": "coach@example.com", "status": "active"})
}

// TestInsert_AssignsIDAndCreatedAt verifies server-side fields.
func TestInsert_AssignsIDAndCreatedAt(t *testing.T) {
	s := openTestStore(t)
	stored := mustInsert(t, s, "members", map[string]any{"id": "client-id", "name": "A"})
	if stored["id"] != "id-01" {
		t.Errorf("id = %v, want id-01", stored["id"])
	}
	if stored["createdAt"] == nil || stored["createdAt"] == "" {
		t.Error("createdAt should be assigned")
	}
}

// TestList_FiltersSearchAndOrder verifies the query translation against SQLite.
func TestList_FiltersSearchAndOrder(t *testing.T) {
	s := openTestStore(t)
	seedMembers(t, s)
	ctx := context.Background()

	tests := []struct {
		name      string
		query     resource.Query
		wantIDs   []string
		wantTotal int
	}{
		{
			name:      "default newest first",
			query:     resource.Query{Order: []resource.Order{{Field: "createdAt", Desc: true}}, Limit: 10},
			wantIDs:   []string{"id-03", "id-02", "id-01"},
			wantTotal: 3,
		},
		{
			name: "equality",
			query: resource.Query{
				Conditions: []resource.Condition{{Field: "status", Op: resource.OpEq, Values: []any{"active"}}},
				Order:      []resource.Order{{Field: "name"}},
				Limit:      10,
			},
			wantIDs:   []string{"id-01", "id-03"},
			wantTotal: 2,
		},
		{
			name: "one of",
			query: resource.Query{
				Conditions: []resource.Condition{{Field: "id", Op: resource.OpIn, Values: []any{"id-01", "id-02"}}},
				Order:      []resource.Order{{Field: "createdAt"}},
				Limit:      10,
			},
			wantIDs:   []string{"id-01", "id-02"},
			wantTotal: 2,
		},
		{
			name: "case-insensitive search",
			query: resource.Query{
				Search:       "ALI",
				SearchFields: []string{"name", "email"},
				Order:        []resource.Order{{Field: "createdAt"}},
				Limit:        10,
			},
			wantIDs:   []string{"id-01", "id-03"},
			wantTotal: 2,
		},
		{
			name: "paged",
			query: resource.Query{
				Order:  []resource.Order{{Field: "createdAt"}},
				Limit:  2,
				Offset: 2,
			},
			wantIDs:   []string{"id-03"},
			wantTotal: 3,
		},
		{
			name: "like wildcards are literal",
			query: resource.Query{
				Search:       "%",
				SearchFields: []string{"name"},
				Limit:        10,
			},
			wantIDs:   nil,
			wantTotal: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, total, err := s.List(ctx, "members", tt.query)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			got := ids(t, docs)
			if fmt.Sprint(got) != fmt.Sprint(tt.wantIDs) {
				t.Errorf("ids = %v, want %v", got, tt.wantIDs)
			}
		})
	}
}

// TestList_NumericRange verifies numbers compare numerically.
func TestList_NumericRange(t *testing.T) {
	s := openTestStore(t)
	for _, amount := range []int{900, 2900, 12000} {
		mustInsert(t, s, "payments", map[string]any{"memberId": "m1", "amount": amount, "currency": "USD", "status": "pending"})
	}
	docs, total, err := s.List(context.Background(), "payments", resource.Query{
		Conditions: []resource.Condition{
			{Field: "amount", Op: resource.OpGte, Values: []any{int64(1000)}},
			{Field: "amount", Op: resource.OpLte, Values: []any{int64(5000)}},
		},
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(docs) != 1 {
		t.Fatalf("expected one payment in range, got %d", total)
	}
}

// TestList_DateOnlyRangeCoversWholeDay verifies a bare "to" date includes
// that day's records and nothing from the next midnight on.
func TestList_DateOnlyRangeCoversWholeDay(t *testing.T) {
	s := openTestStore(t)
	times := []time.Time{
		time.Date(2026, 1, 30, 23, 59, 59, 0, time.UTC),
		time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 31, 18, 30, 0, 0, time.UTC),
		time.Date(2026, 1, 31, 23, 59, 59, 999999999, time.UTC),
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	next := 0
	s.Now = func() time.Time {
		at := times[next]
		next++
		return at
	}
	for range times {
		mustInsert(t, s, "members", map[string]any{"name": "M", "email": "m@example.com", "status": "active"})
	}

	rng, err := resource.ParseRange(resource.FieldCreatedAt, "2026-01-31", "2026-01-31")
	if err != nil {
		t.Fatalf("ParseRange: %v", err)
	}
	clients := resource.NewClients(s, nil)
	page, err := clients.Members.List(context.Background(), resource.Filters{}.Within(rng), 1, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Pagination.Total != 3 {
		t.Fatalf("total = %d, want the three records on 2026-01-31", page.Pagination.Total)
	}
	for _, m := range page.Data {
		if d := m.CreatedAt.UTC().Format("2006-01-02"); d != "2026-01-31" {
			t.Errorf("record %s created %s is outside the day", m.ID, m.CreatedAt)
		}
	}
}

// TestList_RejectsBadFieldName verifies field names cannot inject SQL.
func TestList_RejectsBadFieldName(t *testing.T) {
	s := openTestStore(t)
	_, _, err := s.List(context.Background(), "members", resource.Query{
		Order: []resource.Order{{Field: "name; DROP TABLE record"}},
		Limit: 10,
	})
	if err == nil {
		t.Fatal("expected error for invalid field name")
	}
}

// TestUpdate_MergesAndKeepsImmutableFields verifies partial merge semantics.
func TestUpdate_MergesAndKeepsImmutableFields(t *testing.T) {
	s := openTestStore(t)
	stored := mustInsert(t, s, "members", map[string]any{"name": "Alice", "email": "a@example.com", "status": "active"})

	patch := []byte(`{"status":"inactive","id":"hijack","createdAt":"1999-01-01T00:00:00Z","phone":null}`)
	out, err := s.Update(context.Background(), "members", "id-01", patch)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got := map[string]any{}
	_ = json.Unmarshal(out, &got)
	if got["status"] != "inactive" || got["name"] != "Alice" {
		t.Errorf("unexpected merge result %v", got)
	}
	if got["id"] != "id-01" || got["createdAt"] != stored["createdAt"] {
		t.Errorf("immutable fields changed: %v", got)
	}
}

// TestMissingDocuments verifies Get, Update and Delete report sql.ErrNoRows.
func TestMissingDocuments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.Get(ctx, "members", "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Get: %v", err)
	}
	if _, err := s.Update(ctx, "members", "nope", []byte(`{}`)); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Update: %v", err)
	}
	if err := s.Delete(ctx, "members", "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Delete: %v", err)
	}
}

// TestClientOverSQLite exercises the typed client against the local backend.
func TestClientOverSQLite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	clients := resource.NewClients(s, nil)

	m, err := clients.Members.Create(ctx, member.Member{Name: "Dana", Email: "dana@example.com", Status: member.StatusActive})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.ID == "" || m.CreatedAt.IsZero() {
		t.Fatalf("expected server-assigned fields, got %+v", m)
	}

	if _, err := clients.Members.Create(ctx, member.Member{Email: "x@example.com", Status: member.StatusActive}); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	updated, err := clients.Members.Update(ctx, m.ID, resource.Patch{"phone": "555-0100"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Phone != "555-0100" || !updated.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("unexpected update %+v", updated)
	}

	if err := clients.Members.Remove(ctx, m.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	for i := 0; i < 2; i++ {
		err := clients.Members.Remove(ctx, m.ID)
		var nf *apperr.NotFoundError
		if !errors.As(err, &nf) || nf.ID != m.ID || nf.Collection != "members" {
			t.Errorf("remove #%d: expected NotFoundError for %s, got %v", i+2, m.ID, err)
		}
	}

	if _, err := clients.Bookings.Create(ctx, booking.Booking{MemberID: "m", ClassID: "c", Status: booking.StatusConfirmed}); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	n, err := clients.Bookings.Count(ctx, resource.Filters{}.Where("classId", "c").Where("status", booking.StatusConfirmed))
	if err != nil || n != 1 {
		t.Errorf("Count = %d, %v", n, err)
	}
}
