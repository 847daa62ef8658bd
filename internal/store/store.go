// Package store defines the durable key/value contract backing entity state.
// Backends may be slow or transiently unavailable; callers bound every
// operation with a context deadline and classify failures themselves.
package store

import "context"

// Store is an opaque key/value service. Get reports absence as
// (nil, false, nil); absence is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
