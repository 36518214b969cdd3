// Package storage holds the types shared by the blob store adapters.
package storage

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrObjectNotFound is returned by GetObject when the key does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectTooLarge is returned by GetObject when the object is larger
	// than MaxObjectBytes. Retrying cannot make it fit.
	ErrObjectTooLarge = errors.New("object too large")
)

// Object is a fetched blob.
type Object struct {
	Body        []byte
	ContentType string
}

// PutOptions describes how an object is written.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// MaxObjectBytes caps how much of an object is read into memory.
const MaxObjectBytes = 32 << 20

// ReadBody reads at most limit bytes of an object body and reports
// ErrObjectTooLarge when more remain.
func ReadBody(r io.Reader, key string, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading object body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrObjectTooLarge, key, limit)
	}
	return body, nil
}
