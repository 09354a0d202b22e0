package storage

import (
	"compress/gzip"
	"io"
	"strings"
)

// Codec encodes file content on the way into the store and decodes it on
// the way out. The encoding tag is persisted on the file row so downloads
// pick the matching codec.
type Codec interface {
	Encoding() string
	NewWriter(w io.Writer) io.WriteCloser
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// GzipCodec compresses content with gzip.
type GzipCodec struct{}

func (GzipCodec) Encoding() string { return "gzip" }

func (GzipCodec) NewWriter(w io.Writer) io.WriteCloser {
	return gzip.NewWriter(w)
}

func (GzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// CodecFor returns the codec registered for an encoding tag.
func CodecFor(encoding string) (Codec, bool) {
	switch encoding {
	case "gzip":
		return GzipCodec{}, true
	default:
		return nil, false
	}
}

// Compressible reports whether a content type is worth running through the
// gzip codec. Media formats ship pre-compressed; re-encoding them wastes
// CPU for negative gain.
func Compressible(contentType string) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}
	switch contentType {
	case "application/json", "application/xml", "application/javascript",
		"application/x-yaml", "image/svg+xml":
		return true
	}
	return false
}
