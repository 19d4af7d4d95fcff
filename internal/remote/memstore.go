package remote

import (
	"context"
	"sync"
)

type memBackend struct {
	mu   sync.RWMutex
	docs map[string]Doc
}

// NewInMemoryStore is the offline/dev document store: a map-backed backend
// behind the standard Hub.
func NewInMemoryStore() *Hub {
	return NewHub(&memBackend{docs: map[string]Doc{}})
}

func (m *memBackend) Write(_ context.Context, sessionID string, doc Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[sessionID] = doc.Clone()
	return nil
}

func (m *memBackend) Load(_ context.Context, sessionID string) (Doc, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[sessionID]
	if !ok {
		return Doc{}, false, nil
	}
	return doc.Clone(), true, nil
}
