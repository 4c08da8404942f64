package store

import (
	"context"
	"encoding/json"
	"sync"
)

type edge struct {
	child string
	rel   string
}

// MemoryRepository keeps records in process. Used by tests and as the
// default backend.
type MemoryRepository struct {
	mu       sync.RWMutex
	byKey    map[string]*Record
	children map[string][]edge
	closed   bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byKey:    make(map[string]*Record),
		children: make(map[string][]edge),
	}
}

func (m *MemoryRepository) Save(ctx context.Context, rec *Record) (*Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	fresh, err := prepare(rec)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	if existing, ok := m.byKey[fresh.Key]; ok {
		return clone(existing), false, nil
	}
	m.byKey[fresh.Key] = fresh
	return clone(fresh), true, nil
}

func (m *MemoryRepository) FindByKey(ctx context.Context, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	rec, ok := m.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec), nil
}

func (m *MemoryRepository) AddRelationship(ctx context.Context, parentKey, childKey, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.byKey[parentKey]; !ok {
		return ErrNotFound
	}
	if _, ok := m.byKey[childKey]; !ok {
		return ErrNotFound
	}
	for _, e := range m.children[parentKey] {
		if e.child == childKey && e.rel == rel {
			return nil
		}
	}
	m.children[parentKey] = append(m.children[parentKey], edge{child: childKey, rel: rel})
	return nil
}

func (m *MemoryRepository) Children(ctx context.Context, parentKey, rel string) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []*Record
	for _, e := range m.children[parentKey] {
		if e.rel == rel {
			out = append(out, clone(m.byKey[e.child]))
		}
	}
	return out, nil
}

// Len returns the number of stored records.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey)
}

func (m *MemoryRepository) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func clone(r *Record) *Record {
	out := *r
	out.Payload = append(json.RawMessage(nil), r.Payload...)
	return &out
}
