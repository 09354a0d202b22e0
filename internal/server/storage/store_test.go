package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu    sync.Mutex
	parts map[string][][]byte

	failPut bool
}

func newMemStore() *memStore {
	return &memStore{parts: make(map[string][][]byte)}
}

func (m *memStore) PutPart(ctx context.Context, fileID string, index int, data io.Reader) (int64, error) {
	if m.failPut {
		return 0, errors.New("put failed")
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if index != len(m.parts[fileID]) {
		return 0, fmt.Errorf("out of order part %d", index)
	}
	m.parts[fileID] = append(m.parts[fileID], buf)
	return int64(len(buf)), nil
}

func (m *memStore) GetPart(ctx context.Context, fileID string, index int) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts, ok := m.parts[fileID]
	if !ok || index >= len(parts) {
		return nil, fmt.Errorf("part %d of %s not found", index, fileID)
	}
	return io.NopCloser(bytes.NewReader(parts[index])), nil
}

func (m *memStore) DeleteParts(ctx context.Context, fileID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.parts, fileID)
	return nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func TestPartWriterSplitsIntoParts(t *testing.T) {
	tests := []struct {
		name      string
		partSize  int64
		dataLen   int
		wantParts int
	}{
		{"empty", 4, 0, 0},
		{"single short part", 8, 5, 1},
		{"exact boundary", 8, 8, 1},
		{"two parts", 8, 9, 2},
		{"many parts with tail", 4, 10, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			data := bytes.Repeat([]byte{0xAB}, tt.dataLen)

			w := NewPartWriter(context.Background(), store, "f1", tt.partSize)
			n, err := w.Write(data)
			if err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if n != tt.dataLen {
				t.Errorf("Write returned %d, want %d", n, tt.dataLen)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			if w.Parts() != tt.wantParts {
				t.Errorf("Parts() = %d, want %d", w.Parts(), tt.wantParts)
			}
			if w.BytesWritten() != int64(tt.dataLen) {
				t.Errorf("BytesWritten() = %d, want %d", w.BytesWritten(), tt.dataLen)
			}

			// All parts except the last must be full sized
			parts := store.parts["f1"]
			for i, p := range parts {
				if i < len(parts)-1 && int64(len(p)) != tt.partSize {
					t.Errorf("part %d has %d bytes, want %d", i, len(p), tt.partSize)
				}
			}
		})
	}
}

func TestPartWriterSmallWrites(t *testing.T) {
	store := newMemStore()
	w := NewPartWriter(context.Background(), store, "f1", 4)

	// Byte-at-a-time writes must still produce full parts
	for i := 0; i < 10; i++ {
		if _, err := w.Write([]byte{byte(i)}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if w.Parts() != 3 {
		t.Errorf("Parts() = %d, want 3", w.Parts())
	}
	want := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	var got []byte
	for _, p := range store.parts["f1"] {
		got = append(got, p...)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("stored bytes = %v, want %v", got, want)
	}
}

func TestPartWriterPutError(t *testing.T) {
	store := newMemStore()
	store.failPut = true

	w := NewPartWriter(context.Background(), store, "f1", 4)
	if _, err := w.Write(bytes.Repeat([]byte{1}, 8)); err == nil {
		t.Fatal("expected write error when store fails")
	}
}

func TestPartReaderRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		partSize int64
		dataLen  int
	}{
		{"empty file", 8, 0},
		{"one part", 8, 3},
		{"several parts", 7, 50},
		{"exact multiple", 5, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			data := make([]byte, tt.dataLen)
			for i := range data {
				data[i] = byte(i % 251)
			}

			w := NewPartWriter(context.Background(), store, "f1", tt.partSize)
			if _, err := w.Write(data); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			r := NewPartReader(context.Background(), store, "f1", w.Parts())
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if err := r.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			if !bytes.Equal(got, data) {
				t.Errorf("read %d bytes, want %d; content mismatch", len(got), len(data))
			}
		})
	}
}

func TestPartReaderMissingPart(t *testing.T) {
	store := newMemStore()
	r := NewPartReader(context.Background(), store, "absent", 2)
	if _, err := io.ReadAll(r); err == nil {
		t.Fatal("expected error reading missing parts")
	}
}
