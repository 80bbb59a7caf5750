// Package storage provides key-addressed byte storage for both input
// image retrieval and output artifact persistence.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound reports a key with no stored object.
var ErrNotFound = errors.New("object not found")

// ObjectStore fetches and stores bytes by key. Writes are idempotent
// overwrites; keys are unique per job so no client-side locking is
// needed.
type ObjectStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
}
