package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Store is the content backend for file bodies. Content is keyed by file id
// and part index; the hierarchy only ever records how many parts a file has.
type Store interface {
	PutPart(ctx context.Context, fileID string, index int, data io.Reader) (int64, error)
	GetPart(ctx context.Context, fileID string, index int) (io.ReadCloser, error)
	DeleteParts(ctx context.Context, fileID string, count int) error
	Ping(ctx context.Context) error
}

// PartWriter splits a byte stream into fixed-size parts and writes each to
// the store as it fills. Close flushes the final short part.
type PartWriter struct {
	ctx      context.Context
	store    Store
	fileID   string
	partSize int64

	buf     bytes.Buffer
	parts   int
	written int64
}

func NewPartWriter(ctx context.Context, store Store, fileID string, partSize int64) *PartWriter {
	return &PartWriter{ctx: ctx, store: store, fileID: fileID, partSize: partSize}
}

func (w *PartWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		room := w.partSize - int64(w.buf.Len())
		chunk := int64(len(p))
		if chunk > room {
			chunk = room
		}
		w.buf.Write(p[:chunk])
		p = p[chunk:]

		if int64(w.buf.Len()) == w.partSize {
			if err := w.flush(); err != nil {
				return total - len(p), err
			}
		}
	}
	return total, nil
}

// Close writes any buffered tail as the final part.
func (w *PartWriter) Close() error {
	if w.buf.Len() == 0 {
		return nil
	}
	return w.flush()
}

// Parts returns how many parts have been stored so far.
func (w *PartWriter) Parts() int {
	return w.parts
}

// BytesWritten returns the total byte count persisted to the store.
func (w *PartWriter) BytesWritten() int64 {
	return w.written
}

func (w *PartWriter) flush() error {
	n, err := w.store.PutPart(w.ctx, w.fileID, w.parts, bytes.NewReader(w.buf.Bytes()))
	if err != nil {
		return fmt.Errorf("failed to store part %d: %w", w.parts, err)
	}
	w.written += n
	w.parts++
	w.buf.Reset()
	return nil
}

// PartReader concatenates a file's parts back into one stream.
type PartReader struct {
	ctx    context.Context
	store  Store
	fileID string
	parts  int

	index   int
	current io.ReadCloser
}

func NewPartReader(ctx context.Context, store Store, fileID string, parts int) *PartReader {
	return &PartReader{ctx: ctx, store: store, fileID: fileID, parts: parts}
}

func (r *PartReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if r.index >= r.parts {
				return 0, io.EOF
			}
			part, err := r.store.GetPart(r.ctx, r.fileID, r.index)
			if err != nil {
				return 0, fmt.Errorf("failed to read part %d: %w", r.index, err)
			}
			r.current = part
		}

		n, err := r.current.Read(p)
		if err == io.EOF {
			r.current.Close()
			r.current = nil
			r.index++
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *PartReader) Close() error {
	if r.current != nil {
		err := r.current.Close()
		r.current = nil
		return err
	}
	return nil
}
