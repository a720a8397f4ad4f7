package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore hält Blobs im Prozessspeicher (Tests, lokale Entwicklung).
type MemoryStore struct {
	mu   sync.RWMutex
	objs map[string][]byte
}

// NewMemoryStore erstellt einen leeren MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objs: make(map[string][]byte)}
}

// Put speichert eine Kopie der Daten; ein bestehender Schlüssel ist ein Fehler.
func (m *MemoryStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objs[key]; exists {
		return "", fmt.Errorf("blob %s already exists", key)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objs[key] = cp
	return "memory://" + key, nil
}

// Get liefert eine Kopie der gespeicherten Daten.
func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.objs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return io.NopCloser(bytes.NewReader(cp)), nil
}

// Delete entfernt den Schlüssel.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objs, key)
	return nil
}

// Len gibt die Anzahl gespeicherter Objekte zurück.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objs)
}
