package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/pitchboard/internal/adapters/docstore"
	"github.com/okian/pitchboard/internal/domain/model"
)

// ResultsFailedMessage is the failure text shown to clients. The stored
// resultsError is kept for operators.
const ResultsFailedMessage = "results could not be computed"

// ResultsView is what a client polling for results sees. Leaderboards are
// only populated in the ready state; Error only in the failed state.
type ResultsView struct {
	EventID     string             `json:"eventId"`
	State       model.ResultsState `json:"state"`
	Error       string             `json:"error,omitempty"`
	Cause       string             `json:"-"`
	GeneratedAt *time.Time         `json:"generatedAt,omitempty"`
	Investment  *model.Result      `json:"investment,omitempty"`
	Rating      *model.Result      `json:"rating,omitempty"`
}

// Results derives the readiness of an event's results and, when ready,
// loads both leaderboards.
func (s *Service) Results(ctx context.Context, eventID string) (ResultsView, error) {
	ev, err := s.commands.GetEvent(ctx, eventID)
	if err != nil {
		return ResultsView{}, err
	}
	view := ResultsView{EventID: eventID, State: ev.ResultsState()}
	switch view.State {
	case model.ResultsFailed:
		view.Error = ResultsFailedMessage
		view.Cause = ev.ResultsError
		return view, nil
	case model.ResultsReady:
	default:
		return view, nil
	}

	if !ev.ResultsGeneratedAt.IsZero() {
		at := ev.ResultsGeneratedAt
		view.GeneratedAt = &at
	}
	for _, m := range []model.Metric{model.MetricInvestment, model.MetricRating} {
		r, err := s.loadResult(ctx, eventID, m)
		if err != nil {
			return ResultsView{}, err
		}
		if m == model.MetricInvestment {
			view.Investment = r
		} else {
			view.Rating = r
		}
	}
	return view, nil
}

func (s *Service) loadResult(ctx context.Context, eventID string, m model.Metric) (*model.Result, error) {
	doc, err := s.store.Get(ctx, model.ResultPath(eventID, m.ResultDocID()))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%s results for %s: %w", m, eventID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s results: %w", m, err)
	}
	r, err := model.ResultFromData(doc.Data)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Recompute re-runs the pipeline for an ended event, regardless of its
// current readiness. It can move a failed event to ready.
func (s *Service) Recompute(ctx context.Context, eventID string) (Outcome, error) {
	ev, err := s.commands.GetEvent(ctx, eventID)
	if err != nil {
		return Outcome{}, err
	}
	if ev.Status != model.StatusEnded {
		return Outcome{}, fmt.Errorf("event %s is %s: %w", eventID, ev.Status, ErrNotEnded)
	}
	return s.pipeline.Compute(ctx, eventID)
}
