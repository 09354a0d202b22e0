package storage

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestGzipCodecRoundTrip(t *testing.T) {
	codec := GzipCodec{}
	plain := strings.Repeat("the quick brown fox jumps over the lazy dog\n", 100)

	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	if _, err := io.WriteString(w, plain); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if buf.Len() >= len(plain) {
		t.Errorf("encoded %d bytes, expected smaller than %d for repetitive input", buf.Len(), len(plain))
	}

	r, err := codec.NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != plain {
		t.Error("decoded content does not match input")
	}
}

func TestCodecFor(t *testing.T) {
	if c, ok := CodecFor("gzip"); !ok || c.Encoding() != "gzip" {
		t.Errorf("CodecFor(gzip) = %v, %v", c, ok)
	}
	if _, ok := CodecFor("zstd"); ok {
		t.Error("CodecFor(zstd) should not resolve")
	}
	if _, ok := CodecFor(""); ok {
		t.Error("CodecFor(\"\") should not resolve")
	}
}

func TestCompressible(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/plain", true},
		{"text/html; charset=utf-8", true},
		{"application/json", true},
		{"application/xml", true},
		{"image/svg+xml", true},
		{"image/png", false},
		{"video/mp4", false},
		{"application/zip", false},
		{"application/octet-stream", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			if got := Compressible(tt.contentType); got != tt.want {
				t.Errorf("Compressible(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}
