// Package secrets defines the secret-store boundary of the delivery engine.
// Secrets are written by the credential resolver only and read back at
// dispatch time; everything else handles opaque references.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSecretNotFound is returned when a referenced secret has no stored value.
var ErrSecretNotFound = errors.New("secret not found")

// ErrSecretExists is returned by Put when the secret already exists and
// overwrite was not requested.
var ErrSecretExists = errors.New("secret already exists")

// Store is the secret-store client injected into the credential resolver.
type Store interface {
	// Put stores value under name. If the name exists and overwrite is
	// false, Put fails with ErrSecretExists.
	Put(ctx context.Context, name, value string, overwrite bool) error

	// Get resolves a secret reference to its current value. Returns
	// ErrSecretNotFound for unknown names.
	Get(ctx context.Context, name string) (string, error)
}

// Memory is an in-process Store for tests and local development.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory secret store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, name, value string, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.values[name]; ok && !overwrite {
		return fmt.Errorf("%w: %s", ErrSecretExists, name)
	}
	m.values[name] = value
	return nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return v, nil
}
