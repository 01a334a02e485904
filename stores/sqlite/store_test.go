package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"canvas-server/core"
)

func setupTestDB(t *testing.T) (*Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dbPath
}

func TestNewStore(t *testing.T) {
	store, dbPath := setupTestDB(t)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("NewStore() did not create database file")
	}

	var tableName string
	err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='canvas'").Scan(&tableName)
	if err != nil {
		t.Fatalf("canvas table not created: %v", err)
	}
}

func TestNewStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	if err := first.Put(ctx, "room1", []byte("b1")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	first.Close()

	second, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore() reopen failed: %v", err)
	}
	defer second.Close()

	got, err := second.Get(ctx, "room1")
	if err != nil {
		t.Fatalf("Get() after reopen failed: %v", err)
	}
	if string(got) != "b1" {
		t.Errorf("Get() = %q, want b1", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	store, _ := setupTestDB(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, core.ErrCanvasNotFound) {
		t.Errorf("Get() error = %v, want ErrCanvasNotFound", err)
	}
}

func TestPut_Replaces(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	if err := store.Put(ctx, "room1", []byte("b1")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := store.Put(ctx, "room1", []byte("b2")); err != nil {
		t.Fatalf("Put() replace failed: %v", err)
	}

	got, err := store.Get(ctx, "room1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(got) != "b2" {
		t.Errorf("Get() = %q, want b2", got)
	}

	var rows int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM canvas").Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("canvas rows = %d, want 1", rows)
	}
}

func TestPut_BinaryPayload(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff, 0x00}
	if err := store.Put(ctx, "room1", payload); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	got, err := store.Get(ctx, "room1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Get() = %v, want %v", got, payload)
	}
}

func TestPut_ClosedDB(t *testing.T) {
	store, _ := setupTestDB(t)
	store.Close()

	if err := store.Put(context.Background(), "room1", []byte("b1")); err == nil {
		t.Error("Put() on closed database returned nil error")
	}
}
