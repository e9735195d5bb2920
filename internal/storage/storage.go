package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested artifact does not exist
var ErrNotFound = errors.New("artifact not found")

// Store abstracts where export artifacts live. Keys are relative paths;
// the store maps them onto its backend.
type Store interface {
	Write(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
