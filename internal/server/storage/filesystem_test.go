package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSystemStorePutGet(t *testing.T) {
	store := NewFileSystemStore(t.TempDir())
	ctx := context.Background()

	data := []byte("hello, parts")
	n, err := store.PutPart(ctx, "file-1", 0, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("PutPart failed: %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("PutPart returned %d bytes, want %d", n, len(data))
	}

	rc, err := store.GetPart(ctx, "file-1", 0)
	if err != nil {
		t.Fatalf("GetPart failed: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestFileSystemStoreGetMissing(t *testing.T) {
	store := NewFileSystemStore(t.TempDir())
	if _, err := store.GetPart(context.Background(), "nope", 0); err == nil {
		t.Fatal("expected error for missing part")
	}
}

func TestFileSystemStoreDeleteParts(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSystemStore(dir)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.PutPart(ctx, "file-1", i, bytes.NewReader([]byte{byte(i)})); err != nil {
			t.Fatalf("PutPart %d failed: %v", i, err)
		}
	}

	if err := store.DeleteParts(ctx, "file-1", 3); err != nil {
		t.Fatalf("DeleteParts failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "file-1")); !os.IsNotExist(err) {
		t.Errorf("part directory still exists after delete")
	}

	// Deleting again is fine
	if err := store.DeleteParts(ctx, "file-1", 3); err != nil {
		t.Errorf("second DeleteParts failed: %v", err)
	}
}

func TestFileSystemStorePing(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSystemStore(dir)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping on existing directory failed: %v", err)
	}

	missing := NewFileSystemStore(filepath.Join(dir, "does-not-exist"))
	if err := missing.Ping(context.Background()); err == nil {
		t.Error("Ping on missing directory should fail")
	}
}

func TestFileSystemStoreEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "parts")
	store := NewFileSystemStore(dir)
	if err := store.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping after EnsureDir failed: %v", err)
	}
}
