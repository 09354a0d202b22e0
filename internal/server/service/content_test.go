package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"cumulus/internal/server/database"
	"cumulus/internal/server/storage"
)

// memStore is an in-memory content store for service tests.
type memStore struct {
	parts map[string][][]byte
}

func newMemStore() *memStore {
	return &memStore{parts: make(map[string][][]byte)}
}

func (m *memStore) PutPart(ctx context.Context, fileID string, index int, data io.Reader) (int64, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	m.parts[fileID] = append(m.parts[fileID], buf)
	return int64(len(buf)), nil
}

func (m *memStore) GetPart(ctx context.Context, fileID string, index int) (io.ReadCloser, error) {
	parts, ok := m.parts[fileID]
	if !ok || index >= len(parts) {
		return nil, fmt.Errorf("part %d of %s not found", index, fileID)
	}
	return io.NopCloser(bytes.NewReader(parts[index])), nil
}

func (m *memStore) DeleteParts(ctx context.Context, fileID string, count int) error {
	delete(m.parts, fileID)
	return nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func TestOpenContentPlain(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	data := []byte("plain content spread over several parts")

	pw := storage.NewPartWriter(ctx, store, "f1", 8)
	if _, err := pw.Write(data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := pw.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	file := &database.File{ID: "f1", Parts: pw.Parts()}
	rc, err := openContent(ctx, store, file)
	if err != nil {
		t.Fatalf("openContent failed: %v", err)
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

func TestOpenContentGzip(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	plain := strings.Repeat("compressible text content\n", 200)

	// Encode the way uploads do: codec writer on top of the part writer
	pw := storage.NewPartWriter(ctx, store, "f1", 64)
	codec := storage.GzipCodec{}
	enc := codec.NewWriter(pw)
	if _, err := io.WriteString(enc, plain); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("encoder close failed: %v", err)
	}
	if err := pw.Close(); err != nil {
		t.Fatalf("part writer close failed: %v", err)
	}

	if pw.BytesWritten() >= int64(len(plain)) {
		t.Errorf("encoded size %d not smaller than input %d", pw.BytesWritten(), len(plain))
	}

	encoding := codec.Encoding()
	file := &database.File{ID: "f1", Parts: pw.Parts(), Encoding: &encoding}

	rc, err := openContent(ctx, store, file)
	if err != nil {
		t.Fatalf("openContent failed: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != plain {
		t.Error("decoded content does not match input")
	}
}

func TestOpenContentUnknownEncoding(t *testing.T) {
	store := newMemStore()
	bad := "zstd"
	file := &database.File{ID: "f1", Parts: 0, Encoding: &bad}

	if _, err := openContent(context.Background(), store, file); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}

func TestSamePath(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"both empty", []string{}, []string{}, true},
		{"equal", []string{"a", "b"}, []string{"a", "b"}, true},
		{"different element", []string{"a", "b"}, []string{"a", "c"}, false},
		{"different length", []string{"a"}, []string{"a", "b"}, false},
		{"nil vs empty", nil, []string{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := samePath(tt.a, tt.b); got != tt.want {
				t.Errorf("samePath(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
