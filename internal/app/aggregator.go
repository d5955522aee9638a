package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/okian/pitchboard/internal/adapters/docstore"
	"github.com/okian/pitchboard/internal/domain/aggregate"
	"github.com/okian/pitchboard/internal/domain/model"
	"github.com/okian/pitchboard/pkg/logger"
	"github.com/okian/pitchboard/pkg/metrics"
)

const defaultFetchTimeout = 10 * time.Second

// Aggregator reads one event's investments, ratings and startups and sums
// them per startup.
type Aggregator struct {
	store        docstore.Store
	fetchTimeout time.Duration
	logger       logger.Logger
}

// NewAggregator creates an Aggregator. fetchTimeout bounds each collection
// read; zero selects the default.
func NewAggregator(store docstore.Store, fetchTimeout time.Duration, l logger.Logger) *Aggregator {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	if l == nil {
		l = logger.Get().Named("aggregator")
	}
	return &Aggregator{store: store, fetchTimeout: fetchTimeout, logger: l}
}

// Aggregate fetches the three collections concurrently. Any fetch failure
// aborts the whole call; malformed records are skipped, logged and counted.
func (a *Aggregator) Aggregate(ctx context.Context, eventID string) (aggregate.Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Aggregate",
		trace.WithAttributes(attribute.String("event.id", eventID)),
	)
	defer span.End()

	var investments, ratings, startups []docstore.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		investments, err = a.fetch(gctx, model.InvestmentsCollection, func(ctx context.Context) ([]docstore.Document, error) {
			return a.store.List(ctx, model.InvestmentsPath(eventID))
		})
		return err
	})
	g.Go(func() (err error) {
		ratings, err = a.fetch(gctx, model.RatingsCollection, func(ctx context.Context) ([]docstore.Document, error) {
			return a.store.ListGroup(ctx, model.StartupsPath(eventID), model.RatingsCollection)
		})
		return err
	})
	g.Go(func() (err error) {
		startups, err = a.fetch(gctx, model.StartupsCollection, func(ctx context.Context) ([]docstore.Document, error) {
			return a.store.List(ctx, model.StartupsPath(eventID))
		})
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return aggregate.Result{}, err
	}

	names := make(map[string]map[string]any, len(startups))
	for _, d := range startups {
		names[d.ID()] = d.Data
	}
	res := aggregate.Accumulate(records(investments), records(ratings), names)

	for _, s := range res.Skipped {
		reason := aggregate.Reason(s.Err)
		metrics.RecordRecordSkipped(string(s.Kind), reason)
		a.logger.Warn(ctx, "skipping malformed record",
			logger.String("event_id", eventID),
			logger.String("kind", string(s.Kind)),
			logger.String("path", s.Path),
			logger.String("reason", reason),
		)
	}
	span.SetAttributes(
		attribute.Int("investments.count", len(investments)),
		attribute.Int("ratings.count", len(ratings)),
		attribute.Int("records.skipped", len(res.Skipped)),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (a *Aggregator) fetch(ctx context.Context, collection string, read func(context.Context) ([]docstore.Document, error)) ([]docstore.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	start := time.Now()
	docs, err := read(ctx)
	metrics.RecordFetchDuration(collection, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordErrorByComponent("aggregator", "fetch_"+collection)
		return nil, fmt.Errorf("fetch %s: %w", collection, err)
	}
	return docs, nil
}

func records(docs []docstore.Document) []aggregate.Record {
	out := make([]aggregate.Record, len(docs))
	for i, d := range docs {
		out[i] = aggregate.Record{Path: d.Path, ParentID: d.ParentID(), Data: d.Data}
	}
	return out
}
