package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/pitchboard/internal/adapters/docstore"
	"github.com/okian/pitchboard/internal/domain/model"
)

// Writer persists leaderboards and the event's readiness flags.
type Writer struct {
	store docstore.Store
}

// NewWriter creates a Writer.
func NewWriter(store docstore.Store) *Writer {
	return &Writer{store: store}
}

// WriteResults stores both leaderboards in one atomic commit, overwriting
// any previous results.
func (w *Writer) WriteResults(ctx context.Context, eventID string, results ...model.Result) error {
	b := &docstore.Batch{}
	for i := range results {
		r := &results[i]
		b.Set(model.ResultPath(eventID, r.Metric.ResultDocID()), r.Data())
	}
	if err := w.store.Commit(ctx, b.Writes()); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// MarkReady flags results as ready and clears any earlier failure.
func (w *Writer) MarkReady(ctx context.Context, eventID string, at time.Time) error {
	err := w.store.Update(ctx, model.EventPath(eventID), map[string]any{
		model.FieldResultsReady:       true,
		model.FieldResultsGeneratedAt: model.FormatTime(at),
		model.FieldResultsError:       docstore.DeleteField,
	})
	if err != nil {
		return fmt.Errorf("mark results ready: %w", err)
	}
	return nil
}

// MarkFailed records cause on the event.
func (w *Writer) MarkFailed(ctx context.Context, eventID string, cause error, at time.Time) error {
	err := w.store.Update(ctx, model.EventPath(eventID), map[string]any{
		model.FieldResultsReady:       false,
		model.FieldResultsError:       cause.Error(),
		model.FieldResultsGeneratedAt: model.FormatTime(at),
	})
	if err != nil {
		return fmt.Errorf("mark results failed: %w", err)
	}
	return nil
}
