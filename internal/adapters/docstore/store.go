// Package docstore provides a hierarchical document store addressed by
// slash-separated paths (collection/doc/collection/doc...). Documents are
// JSON-shaped maps. Every committed write is published as a Change with
// its before and after images to registered watchers.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the document database used by the application.
type Store interface {
	// Get returns the document at path or ErrNotFound.
	Get(ctx context.Context, path string) (Document, error)
	// List returns the direct child documents of a collection, ordered by path.
	List(ctx context.Context, collection string) ([]Document, error)
	// ListGroup returns every document in a collection named collectionID
	// nested exactly one document below parent
	// (parent/{doc}/collectionID/{id}), ordered by path.
	ListGroup(ctx context.Context, parent, collectionID string) ([]Document, error)
	// Query returns direct children of collection whose field equals value.
	Query(ctx context.Context, collection, field string, value any) ([]Document, error)

	// Set replaces the document at path.
	Set(ctx context.Context, path string, data map[string]any) error
	// Update merges fields into an existing document. A DeleteField value
	// removes the key.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Commit applies all writes atomically.
	Commit(ctx context.Context, writes []Write) error

	// Watch registers p for changes on paths accepted by match.
	Watch(match func(path string) bool, p Publisher)
	Close() error
}

// Document is a stored document.
type Document struct {
	Path string
	Data map[string]any
}

// ID returns the last path segment.
func (d Document) ID() string {
	return d.Path[strings.LastIndexByte(d.Path, '/')+1:]
}

// ParentID returns the id of the document owning this document's
// collection, or "" for top-level documents.
func (d Document) ParentID() string {
	parts := strings.Split(d.Path, "/")
	if len(parts) < 4 {
		return ""
	}
	return parts[len(parts)-3]
}

// Op is a write operation kind.
type Op int

// Write operations.
const (
	OpSet Op = iota
	OpUpdate
	OpCreate
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpUpdate:
		return "update"
	case OpCreate:
		return "create"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Write is one operation of a batch.
type Write struct {
	Op   Op
	Path string
	Data map[string]any
}

// Batch collects writes to be committed together.
type Batch struct {
	writes []Write
}

// Set queues a full replacement of path.
func (b *Batch) Set(path string, data map[string]any) *Batch {
	b.writes = append(b.writes, Write{Op: OpSet, Path: path, Data: data})
	return b
}

// Update queues a merge into an existing document.
func (b *Batch) Update(path string, fields map[string]any) *Batch {
	b.writes = append(b.writes, Write{Op: OpUpdate, Path: path, Data: fields})
	return b
}

// Create queues a write that fails with ErrAlreadyExists if path exists.
func (b *Batch) Create(path string, data map[string]any) *Batch {
	b.writes = append(b.writes, Write{Op: OpCreate, Path: path, Data: data})
	return b
}

// Writes returns the queued writes.
func (b *Batch) Writes() []Write { return b.writes }

// Len returns the number of queued writes.
func (b *Batch) Len() int { return len(b.writes) }

type deleteField struct{}

// DeleteField removes a key when used as a value in Update.
var DeleteField any = deleteField{}

// Change describes one committed write. Before is nil when the document
// did not exist.
type Change struct {
	ID      string
	Path    string
	Before  map[string]any
	After   map[string]any
	At      time.Time
	Attempt int
}

// Publisher receives committed changes. Publish reports whether the change
// was accepted.
type Publisher interface {
	Publish(ctx context.Context, c Change) bool
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, c Change) bool

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, c Change) bool { return f(ctx, c) }

type watch struct {
	match func(string) bool
	pub   Publisher
}

// watchers fans committed changes out to registered publishers.
type watchers struct {
	mu      sync.RWMutex
	watches []watch
}

func (w *watchers) add(match func(string) bool, p Publisher) {
	if p == nil {
		return
	}
	if match == nil {
		match = func(string) bool { return true }
	}
	w.mu.Lock()
	w.watches = append(w.watches, watch{match: match, pub: p})
	w.mu.Unlock()
}

func (w *watchers) publish(ctx context.Context, changes []Change) {
	w.mu.RLock()
	ws := w.watches
	w.mu.RUnlock()
	for _, c := range changes {
		for _, wt := range ws {
			if wt.match(c.Path) {
				wt.pub.Publish(ctx, c)
			}
		}
	}
}

func newChange(path string, before, after map[string]any) Change {
	return Change{
		ID:     uuid.NewString(),
		Path:   path,
		Before: clone(before),
		After:  clone(after),
		At:     time.Now().UTC(),
	}
}

// clone copies an already normalized document.
func clone(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	cp, err := normalize(data)
	if err != nil {
		return data
	}
	return cp
}

// apply computes the after-image of w over before. before is nil when the
// document is missing.
func apply(w Write, before map[string]any) (map[string]any, error) {
	switch w.Op {
	case OpCreate:
		if before != nil {
			return nil, fmt.Errorf("create %s: %w", w.Path, ErrAlreadyExists)
		}
		return normalize(w.Data)
	case OpSet:
		return normalize(w.Data)
	case OpUpdate:
		if before == nil {
			return nil, fmt.Errorf("update %s: %w", w.Path, ErrNotFound)
		}
		merged := make(map[string]any, len(before)+len(w.Data))
		for k, v := range before {
			merged[k] = v
		}
		for k, v := range w.Data {
			if _, del := v.(deleteField); del {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		return normalize(merged)
	}
	return nil, fmt.Errorf("unknown write op %s", w.Op)
}

// normalize deep-copies data into its JSON shape so every backend stores
// and returns identical value types (float64 numbers, []any, map[string]any).
func normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func normalizeValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func filterEqual(docs []Document, field string, value any) []Document {
	want := normalizeValue(value)
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if got, ok := d.Data[field]; ok && reflect.DeepEqual(got, want) {
			out = append(out, d)
		}
	}
	return out
}

func segments(path string) ([]string, error) {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return nil, fmt.Errorf("%q: %w", path, ErrInvalidPath)
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%q: %w", path, ErrInvalidPath)
		}
	}
	return parts, nil
}

// validateDoc checks that path addresses a document (even segment count).
func validateDoc(path string) error {
	parts, err := segments(path)
	if err != nil {
		return err
	}
	if len(parts)%2 != 0 {
		return fmt.Errorf("%q is a collection: %w", path, ErrInvalidPath)
	}
	return nil
}

// validateCollection checks that path addresses a collection (odd segment count).
func validateCollection(path string) error {
	parts, err := segments(path)
	if err != nil {
		return err
	}
	if len(parts)%2 != 1 {
		return fmt.Errorf("%q is a document: %w", path, ErrInvalidPath)
	}
	return nil
}

// isChild reports whether path is a direct child document of collection.
func isChild(collection, path string) bool {
	rest, ok := strings.CutPrefix(path, collection+"/")
	return ok && rest != "" && !strings.Contains(rest, "/")
}

// isGroupMember reports whether path is parent/{doc}/collectionID/{id}.
func isGroupMember(parent, collectionID, path string) bool {
	rest, ok := strings.CutPrefix(path, parent+"/")
	if !ok {
		return false
	}
	parts := strings.Split(rest, "/")
	return len(parts) == 3 && parts[0] != "" && parts[1] == collectionID && parts[2] != ""
}

func sortDocs(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
}
