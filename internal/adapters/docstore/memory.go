package docstore

import (
	"context"
	"sync"
)

// MemStore is an in-process Store.
type MemStore struct {
	mu     sync.RWMutex
	docs   map[string]map[string]any
	closed bool
	watchers
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string]map[string]any)}
}

func (s *MemStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if err := validateDoc(path); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Document{}, ErrClosed
	}
	data, ok := s.docs[path]
	if !ok {
		return Document{}, ErrNotFound
	}
	cp, err := normalize(data)
	if err != nil {
		return Document{}, err
	}
	return Document{Path: path, Data: cp}, nil
}

func (s *MemStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	return s.scan(ctx, func(p string) bool { return isChild(collection, p) })
}

func (s *MemStore) ListGroup(ctx context.Context, parent, collectionID string) ([]Document, error) {
	if err := validateCollection(parent); err != nil {
		return nil, err
	}
	return s.scan(ctx, func(p string) bool { return isGroupMember(parent, collectionID, p) })
}

func (s *MemStore) Query(ctx context.Context, collection, field string, value any) ([]Document, error) {
	docs, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	return filterEqual(docs, field, value), nil
}

func (s *MemStore) scan(ctx context.Context, keep func(string) bool) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	docs := []Document{}
	for p, data := range s.docs {
		if !keep(p) {
			continue
		}
		cp, err := normalize(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{Path: p, Data: cp})
	}
	sortDocs(docs)
	return docs, nil
}

func (s *MemStore) Set(ctx context.Context, path string, data map[string]any) error {
	return s.Commit(ctx, []Write{{Op: OpSet, Path: path, Data: data}})
}

func (s *MemStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.Commit(ctx, []Write{{Op: OpUpdate, Path: path, Data: fields}})
}

// Commit stages every write against a private view and swaps it in only if
// all succeed.
func (s *MemStore) Commit(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, w := range writes {
		if err := validateDoc(w.Path); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	staged := make(map[string]map[string]any, len(writes))
	changes := make([]Change, 0, len(writes))
	for _, w := range writes {
		before, ok := staged[w.Path]
		if !ok {
			before = s.docs[w.Path]
		}
		after, err := apply(w, before)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		staged[w.Path] = after
		changes = append(changes, newChange(w.Path, before, after))
	}
	for p, d := range staged {
		s.docs[p] = d
	}
	s.mu.Unlock()

	s.publish(ctx, changes)
	return nil
}

// Watch registers p for changes on paths accepted by match.
func (s *MemStore) Watch(match func(path string) bool, p Publisher) {
	s.add(match, p)
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
