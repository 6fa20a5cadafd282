// Package blob stores document bytes under content-addressed references.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an unknown reference.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidRef is returned for a reference that is not content-addressed.
var ErrInvalidRef = errors.New("invalid blob reference")

// Store is a content-addressable blob store. Put is idempotent: storing the same bytes
// twice returns the same reference.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
}
