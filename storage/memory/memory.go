// Package memory provides a thread-safe in-memory storage.Backend.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/jrsteele09/go-stitch-auth/storage"
)

var _ storage.Backend = (*Backend)(nil)

// Backend keeps values in a map. It is the default backend and is suitable for tests and
// short-lived processes.
type Backend struct {
	values map[string]string
	lock   sync.RWMutex
}

func New() *Backend {
	return &Backend{
		values: make(map[string]string),
	}
}

// NewWithValues seeds the backend, e.g. with legacy keys written by an older client.
func NewWithValues(values map[string]string) *Backend {
	b := New()
	maps.Copy(b.values, values)
	return b
}

func (b *Backend) Get(_ context.Context, key string) (string, bool, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	value, ok := b.values[key]
	return value, ok, nil
}

func (b *Backend) Set(_ context.Context, key, value string) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.values[key] = value
	return nil
}

func (b *Backend) Remove(_ context.Context, key string) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	delete(b.values, key)
	return nil
}

// Snapshot returns a copy of every stored key and value.
func (b *Backend) Snapshot() map[string]string {
	b.lock.RLock()
	defer b.lock.RUnlock()

	return maps.Clone(b.values)
}
