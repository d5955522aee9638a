package service

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/pitchboard/internal/adapters/docstore"
	"github.com/okian/pitchboard/internal/domain/model"
	"github.com/okian/pitchboard/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var fixedNow = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// failingStore wraps a store and fails selected operations.
type failingStore struct {
	docstore.Store
	failList   string
	failUpdate bool
	failCommit bool
	slowList   time.Duration
}

var errUnavailable = errors.New("storage unavailable")

func (f *failingStore) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	if f.failList != "" && strings.HasSuffix(collection, "/"+f.failList) {
		return nil, errUnavailable
	}
	if f.slowList > 0 {
		select {
		case <-time.After(f.slowList):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.Store.List(ctx, collection)
}

func (f *failingStore) Commit(ctx context.Context, writes []docstore.Write) error {
	if f.failCommit {
		return errUnavailable
	}
	return f.Store.Commit(ctx, writes)
}

func (f *failingStore) Update(ctx context.Context, path string, fields map[string]any) error {
	if f.failUpdate {
		return errUnavailable
	}
	return f.Store.Update(ctx, path, fields)
}

// seed writes an ended event with the given investments and ratings
// directly into store. Startup names are looked up in names.
func seed(store docstore.Store, eventID string, names map[string]string, investments map[string]float64, ratings map[string]float64) {
	ctx := context.Background()
	b := &docstore.Batch{}
	b.Set(model.EventPath(eventID), map[string]any{"status": "ended", "hostUid": "host-1", "name": "Demo"})
	for id, name := range names {
		b.Set(model.StartupPath(eventID, id), map[string]any{"name": name})
	}
	for key, v := range investments {
		parts := strings.SplitN(key, "_", 2)
		b.Set(model.InvestmentPath(eventID, parts[0], parts[1]), map[string]any{
			"userId": parts[0], "startupId": parts[1], "investedPM": v,
		})
	}
	for key, v := range ratings {
		parts := strings.SplitN(key, "_", 2)
		b.Set(model.RatingPath(eventID, parts[1], parts[0]), map[string]any{"totalScore": v})
	}
	if err := store.Commit(ctx, b.Writes()); err != nil {
		panic(err)
	}
}

func newPipeline(store docstore.Store, opts ...PipelineOption) *Pipeline {
	opts = append([]PipelineOption{WithClock(clock)}, opts...)
	return NewPipeline(NewAggregator(store, time.Second, nil), NewWriter(store), opts...)
}

func eventDoc(store docstore.Store, eventID string) model.Event {
	doc, err := store.Get(context.Background(), model.EventPath(eventID))
	if err != nil {
		panic(err)
	}
	return model.EventFromData(eventID, doc.Data)
}

func resultDoc(store docstore.Store, eventID string, m model.Metric) (model.Result, error) {
	doc, err := store.Get(context.Background(), model.ResultPath(eventID, m.ResultDocID()))
	if err != nil {
		return model.Result{}, err
	}
	return model.ResultFromData(doc.Data)
}
