package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/okian/pitchboard/pkg/logger"
)

const commitRetries = 3

// BadgerStore is a Store persisted in a Badger key-value database. Keys are
// document paths and values are JSON encoded document bodies.
type BadgerStore struct {
	db       *badger.DB
	log      logger.Logger
	path     string
	inMemory bool
	sync     bool

	gcInterval time.Duration
	gcRatio    float64
	stopGC     chan struct{}
	gcDone     chan struct{}
	closeOnce  sync.Once
	watchers
}

var _ Store = (*BadgerStore)(nil)

// BadgerOption configures a BadgerStore.
type BadgerOption func(*BadgerStore)

// WithInMemory keeps all data in memory. Useful for tests.
func WithInMemory() BadgerOption {
	return func(s *BadgerStore) { s.inMemory = true }
}

// WithSyncWrites fsyncs every commit.
func WithSyncWrites(enabled bool) BadgerOption {
	return func(s *BadgerStore) { s.sync = enabled }
}

// WithLogger routes Badger's internal logging to l.
func WithLogger(l logger.Logger) BadgerOption {
	return func(s *BadgerStore) { s.log = l }
}

// WithGC runs value log garbage collection every interval. Ignored for
// in-memory stores.
func WithGC(interval time.Duration, discardRatio float64) BadgerOption {
	return func(s *BadgerStore) {
		if interval > 0 && discardRatio > 0 && discardRatio < 1 {
			s.gcInterval = interval
			s.gcRatio = discardRatio
		}
	}
}

// OpenBadger opens (or creates) a Badger backed store at dir.
func OpenBadger(dir string, opts ...BadgerOption) (*BadgerStore, error) {
	s := &BadgerStore{path: dir, sync: true}
	for _, opt := range opts {
		opt(s)
	}

	var bopts badger.Options
	if s.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if dir == "" {
			return nil, errors.New("badger: data dir is required for a persistent store")
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", dir, err)
		}
		bopts = badger.DefaultOptions(dir)
	}
	bopts = bopts.WithSyncWrites(s.sync && !s.inMemory).WithNumVersionsToKeep(1)
	if s.log != nil {
		bopts = bopts.WithLogger(&badgerLogger{log: s.log})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s.db = db

	if s.gcInterval > 0 && !s.inMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC()
	}
	return s, nil
}

func (s *BadgerStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if err := validateDoc(path); err != nil {
		return Document{}, err
	}
	var data map[string]any
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		data, err = getTxn(txn, path)
		return err
	})
	if err != nil {
		return Document{}, mapErr(err)
	}
	if data == nil {
		return Document{}, ErrNotFound
	}
	return Document{Path: path, Data: data}, nil
}

func (s *BadgerStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	return s.scan(ctx, collection+"/", func(p string) bool { return isChild(collection, p) })
}

func (s *BadgerStore) ListGroup(ctx context.Context, parent, collectionID string) ([]Document, error) {
	if err := validateCollection(parent); err != nil {
		return nil, err
	}
	return s.scan(ctx, parent+"/", func(p string) bool { return isGroupMember(parent, collectionID, p) })
}

func (s *BadgerStore) Query(ctx context.Context, collection, field string, value any) ([]Document, error) {
	docs, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	return filterEqual(docs, field, value), nil
}

func (s *BadgerStore) scan(ctx context.Context, prefix string, keep func(string) bool) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs := []Document{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: []byte(prefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			p := string(item.Key())
			if !keep(p) {
				continue
			}
			var data map[string]any
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &data) }); err != nil {
				return fmt.Errorf("decode %s: %w", p, err)
			}
			docs = append(docs, Document{Path: p, Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return docs, nil
}

func (s *BadgerStore) Set(ctx context.Context, path string, data map[string]any) error {
	return s.Commit(ctx, []Write{{Op: OpSet, Path: path, Data: data}})
}

func (s *BadgerStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.Commit(ctx, []Write{{Op: OpUpdate, Path: path, Data: fields}})
}

// Commit applies writes in a single Badger transaction, retrying on
// transaction conflicts.
func (s *BadgerStore) Commit(ctx context.Context, writes []Write) error {
	for _, w := range writes {
		if err := validateDoc(w.Path); err != nil {
			return err
		}
	}

	var changes []Change
	var err error
	for attempt := 0; attempt < commitRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		changes, err = s.commitOnce(writes)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return mapErr(err)
	}
	s.publish(ctx, changes)
	return nil
}

func (s *BadgerStore) commitOnce(writes []Write) ([]Change, error) {
	changes := make([]Change, 0, len(writes))
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, w := range writes {
			before, err := getTxn(txn, w.Path)
			if err != nil {
				return err
			}
			after, err := apply(w, before)
			if err != nil {
				return err
			}
			raw, err := json.Marshal(after)
			if err != nil {
				return fmt.Errorf("encode %s: %w", w.Path, err)
			}
			if err := txn.Set([]byte(w.Path), raw); err != nil {
				return fmt.Errorf("write %s: %w", w.Path, err)
			}
			changes = append(changes, newChange(w.Path, before, after))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// getTxn reads path inside txn; a missing key yields nil data.
func getTxn(txn *badger.Txn, path string) (map[string]any, error) {
	item, err := txn.Get([]byte(path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var data map[string]any
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &data) }); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return data, nil
}

func mapErr(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

// Watch registers p for changes on paths accepted by match.
func (s *BadgerStore) Watch(match func(path string) bool, p Publisher) {
	s.add(match, p)
}

// Close stops garbage collection and closes the database.
func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err = s.db.Close()
	})
	return err
}

func (s *BadgerStore) runGC() {
	defer close(s.gcDone)
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(s.gcRatio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.log != nil {
				s.log.Warn(context.Background(), "badger value log gc failed", logger.Error(err))
			}
		}
	}
}

// badgerLogger adapts logger.Logger to badger.Logger.
type badgerLogger struct {
	log logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}
