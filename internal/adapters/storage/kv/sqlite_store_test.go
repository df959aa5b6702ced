package kv

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"gymdesk/internal/adapters/storage"
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
	return NewSQLiteStore(db)
}

// TestSQLiteStore_SetGetDelete verifies the basic lifecycle of a key.
func TestSQLiteStore_SetGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, KeyAuth); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, KeyAuth, `{"token":"a"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, KeyAuth, `{"token":"b"}`); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, ok, err := s.Get(ctx, KeyAuth)
	if err != nil || !ok || v != `{"token":"b"}` {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}
	if err := s.Delete(ctx, KeyAuth); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, KeyAuth); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, KeyAuth); ok {
		t.Error("expected key removed")
	}
}

// TestSQLiteStore_KeysIndependent verifies keys do not collide.
func TestSQLiteStore_KeysIndependent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, KeyRegisterDraft, "draft")
	_ = s.Set(ctx, KeyRegisterRole, "trainer")
	if err := s.Delete(ctx, KeyRegisterDraft); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := s.Get(ctx, KeyRegisterRole); !ok || v != "trainer" {
		t.Errorf("role key = %q %v", v, ok)
	}
}
