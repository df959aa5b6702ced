package account

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"gymdesk/internal/adapters/storage"
	domain "gymdesk/internal/domain/account"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	return NewSQLiteStore(db)
}

func testAccount() domain.Account {
	return domain.Account{
		ID:           "acc-1",
		Email:        "owner1@example.com",
		PasswordHash: "hash",
		AppMetadata:  map[string]any{"role": "owner"},
		UserMetadata: map[string]any{"full_name": "Olive Owner"},
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// TestSQLiteStore_SaveAndGet verifies metadata and timestamps survive a round trip.
func TestSQLiteStore_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, testAccount()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.GetByEmail(ctx, "OWNER1@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if got.ID != "acc-1" || got.AppMetadata["role"] != "owner" || got.UserMetadata["full_name"] != "Olive Owner" {
		t.Errorf("unexpected account %+v", got)
	}
	if !got.CreatedAt.Equal(testAccount().CreatedAt) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}
	if !got.LockedUntil.IsZero() {
		t.Errorf("LockedUntil should be zero, got %v", got.LockedUntil)
	}
}

// TestSQLiteStore_Upsert verifies Save updates an existing row.
func TestSQLiteStore_Upsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := testAccount()
	_ = s.Save(ctx, a)

	a.FailedLogins = 5
	a.LockedUntil = time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC)
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	got, err := s.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.FailedLogins != 5 || !got.LockedUntil.Equal(a.LockedUntil) {
		t.Errorf("unexpected lock state %+v", got)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

// TestSQLiteStore_NotFound verifies missing rows wrap sql.ErrNoRows.
func TestSQLiteStore_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetByID(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

// TestSQLiteStore_ResetTokens verifies save, lookup and invalidation.
func TestSQLiteStore_ResetTokens(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.Save(ctx, testAccount())
	now := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)

	tok := domain.ResetToken{ID: "t1", AccountID: "acc-1", Token: "secret", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := s.SaveResetToken(ctx, tok); err != nil {
		t.Fatalf("SaveResetToken: %v", err)
	}
	got, err := s.GetResetToken(ctx, "secret")
	if err != nil {
		t.Fatalf("GetResetToken: %v", err)
	}
	if err := got.Check(now); err != nil {
		t.Errorf("fresh token should pass: %v", err)
	}

	if err := s.InvalidateResetTokens(ctx, "acc-1"); err != nil {
		t.Fatalf("InvalidateResetTokens: %v", err)
	}
	got, _ = s.GetResetToken(ctx, "secret")
	if !errors.Is(got.Check(now), domain.ErrTokenUsed) {
		t.Errorf("expected ErrTokenUsed, got %v", got.Check(now))
	}

	if _, err := s.GetResetToken(ctx, "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}
