// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package kv provides durable key/value media for persisted state.
package kv

import (
	"context"
	"sync"

	"github.com/samber/oops"
)

// Error codes for storage media.
const (
	CodeMediumFailed     = "KV_MEDIUM_FAILED"
	CodeUnknownDriver    = "KV_UNKNOWN_DRIVER"
	CodeSchemaMissing    = "KV_SCHEMA_MISSING"
	CodeInvalidKey       = "KV_INVALID_KEY"
	CodeConnectionFailed = "KV_CONNECTION_FAILED"
)

// Medium stores opaque string values by key.
type Medium interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// MemoryMedium keeps values in process memory.
//
// MemoryMedium is safe for concurrent use. The zero value is ready to use.
type MemoryMedium struct {
	values map[string]string
	mu     sync.RWMutex
}

// Compile-time interface check.
var _ Medium = (*MemoryMedium)(nil)

// NewMemoryMedium creates an empty in-memory medium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{values: make(map[string]string)}
}

// Get implements Medium.
func (m *MemoryMedium) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Medium.
func (m *MemoryMedium) Set(_ context.Context, key, value string) error {
	if key == "" {
		return oops.Code(CodeInvalidKey).In("kv").Errorf("key cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// Delete implements Medium.
func (m *MemoryMedium) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryMedium) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
