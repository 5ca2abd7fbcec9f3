// Package docstore persists small named documents. The quota counter and the
// status cache are each a single flat document that is loaded whole, mutated
// in memory, and written back whole.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when a document has never been saved.
var ErrNotFound = errors.New("docstore: document not found")

// Store reads and writes named documents.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	Close() error
}
