// File: internal/artifactstore/store.go
// Brief: Internal artifactstore package implementation for 'artifactstore'.

// Package artifactstore provides the content-addressed key/value blob layer
// shared by both pipelines: a local filesystem backend and an
// object-storage backend, both honoring one contract.
package artifactstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read* when the requested key does not exist.
var ErrNotFound = errors.New("artifactstore: key not found")

// Store is the polymorphic contract both backends implement. Implementations
// never cache; every call reflects current backend state.
type Store interface {
	// WriteText/WriteBytes create parent "directories" as needed and
	// overwrite existing content. No partial-write visibility is required.
	WriteText(ctx context.Context, key string, data string) error
	WriteBytes(ctx context.Context, key string, data []byte) error

	// ReadText/ReadBytes return ErrNotFound (via errors.Is) for a missing key.
	ReadText(ctx context.Context, key string) (string, error)
	ReadBytes(ctx context.Context, key string) ([]byte, error)

	// CreateIfAbsent succeeds (returns true) only once for a given key; it
	// is the sole required atomic primitive, used for the worker lock.
	CreateIfAbsent(ctx context.Context, key string, data []byte) (bool, error)

	// Exists reports whether key currently resolves to content.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns every leaf key under prefix, recursively. Ordering is
	// not guaranteed; callers sort explicitly when order matters.
	List(ctx context.Context, prefix string) ([]string, error)

	// DeletePrefix recursively deletes everything under prefix. Best
	// effort: no error if the prefix is already absent.
	DeletePrefix(ctx context.Context, prefix string) error

	// URIForKey returns a backend-appropriate absolute URI for reports.
	URIForKey(key string) string
}
