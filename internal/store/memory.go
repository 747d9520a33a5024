package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
	"github.com/google/uuid"
)

// Memory is a process-local Store. Documents are cloned on the way in and
// out so callers never share maps with the store.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]document.Document
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]document.Document)}
}

func (m *Memory) FindAll(ctx context.Context) ([]document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]document.Document, 0, len(m.docs))
	for _, id := range slices.Sorted(maps.Keys(m.docs)) {
		out = append(out, m.docs[id].Clone())
	}
	return out, nil
}

func (m *Memory) FindByIDs(ctx context.Context, ids []string) (map[string]document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]document.Document, len(ids))
	for _, id := range ids {
		if doc, ok := m.docs[id]; ok {
			out[id] = doc.Clone()
		}
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, doc document.Document) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return document.Document{}, err
	}
	doc = doc.Clone()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[doc.ID]; exists {
		return document.Document{}, fmt.Errorf("inserting %s: %w", doc.ID, apperrors.ErrDocumentExists)
	}
	m.docs[doc.ID] = doc
	return doc.Clone(), nil
}

func (m *Memory) FindByIDAndUpdate(ctx context.Context, id string, patch document.Document) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return document.Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.docs[id]
	if !ok {
		return document.Document{}, fmt.Errorf("updating %s: %w", id, apperrors.ErrDocumentNotFound)
	}
	updated := current.Merge(patch)
	updated.ID = id
	m.docs[id] = updated
	return updated.Clone(), nil
}

func (m *Memory) FindByIDAndDelete(ctx context.Context, id string) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return document.Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return document.Document{}, fmt.Errorf("deleting %s: %w", id, apperrors.ErrDocumentNotFound)
	}
	delete(m.docs, id)
	return doc, nil
}

func (m *Memory) Put(ctx context.Context, doc document.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: document id is required", apperrors.ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc.Clone()
	return nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}
