package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/okian/pitchboard/internal/adapters/docstore"
	"github.com/okian/pitchboard/internal/domain/model"
)

const (
	eventCodeAttempts = 10
	eventCodeMin      = 10_000
	eventCodeSpan     = 90_000
)

// Commands performs the validated writes that feed the pipeline.
type Commands struct {
	store docstore.Store
	now   func() time.Time
	code  func() string
}

// NewCommands creates Commands.
func NewCommands(store docstore.Store) *Commands {
	return &Commands{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		code:  func() string { return strconv.Itoa(eventCodeMin + rand.IntN(eventCodeSpan)) },
	}
}

// CreateEventInput is the payload for CreateEvent.
type CreateEventInput struct {
	Name               string  `json:"name" validate:"required,max=200"`
	HostUID            string  `json:"hostUid" validate:"required"`
	StartingAllocation float64 `json:"startingAllocation" validate:"gte=0"`
}

// CreateEvent stores a new event in setup under a random 5-digit code.
func (c *Commands) CreateEvent(ctx context.Context, in CreateEventInput) (model.Event, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Event{}, fmt.Errorf("event name is required: %w", ErrBadRequest)
	}
	now := c.now()
	for i := 0; i < eventCodeAttempts; i++ {
		ev := model.Event{
			ID:                 c.code(),
			Name:               name,
			Status:             model.StatusSetup,
			HostUID:            in.HostUID,
			StartingAllocation: in.StartingAllocation,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		b := &docstore.Batch{}
		b.Create(model.EventPath(ev.ID), ev.Data())
		err := c.store.Commit(ctx, b.Writes())
		if errors.Is(err, docstore.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return model.Event{}, fmt.Errorf("create event: %w", err)
		}
		return ev, nil
	}
	return model.Event{}, ErrCodeExhausted
}

// GetEvent loads an event.
func (c *Commands) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	if !model.ValidID(eventID) {
		return model.Event{}, fmt.Errorf("event id %q: %w", eventID, ErrBadRequest)
	}
	doc, err := c.store.Get(ctx, model.EventPath(eventID))
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Event{}, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("load event %s: %w", eventID, err)
	}
	return model.EventFromData(eventID, doc.Data), nil
}

// SetStatus moves an event forward one lifecycle step. Setting the current
// status again is a no-op.
func (c *Commands) SetStatus(ctx context.Context, eventID string, next model.Status) (model.Event, error) {
	if !next.Valid() {
		return model.Event{}, fmt.Errorf("unknown status %q: %w", next, ErrBadRequest)
	}
	ev, err := c.GetEvent(ctx, eventID)
	if err != nil {
		return model.Event{}, err
	}
	if ev.Status == next {
		return ev, nil
	}
	if !ev.Status.CanTransition(next) {
		return model.Event{}, fmt.Errorf("%s -> %s: %w", ev.Status, next, ErrInvalidTransition)
	}
	ev.Status = next
	ev.UpdatedAt = c.now()
	err = c.store.Update(ctx, model.EventPath(eventID), map[string]any{
		model.FieldStatus:    string(next),
		model.FieldUpdatedAt: model.FormatTime(ev.UpdatedAt),
	})
	if err != nil {
		return model.Event{}, fmt.Errorf("update status: %w", err)
	}
	return ev, nil
}

// UpsertStartupInput is the payload for UpsertStartup.
type UpsertStartupInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	OwnerUID string `json:"ownerUid"`
}

// UpsertStartup creates or renames a startup. Names are unique per event
// after normalisation.
func (c *Commands) UpsertStartup(ctx context.Context, eventID, startupID string, in UpsertStartupInput) (model.Startup, error) {
	name := strings.TrimSpace(in.Name)
	if !model.ValidID(startupID) || name == "" {
		return model.Startup{}, fmt.Errorf("valid startup id and name are required: %w", ErrBadRequest)
	}
	if _, err := c.GetEvent(ctx, eventID); err != nil {
		return model.Startup{}, err
	}
	normalized := model.NormalizeName(name)
	clashes, err := c.store.Query(ctx, model.StartupsPath(eventID), model.FieldNormalizedName, normalized)
	if err != nil {
		return model.Startup{}, fmt.Errorf("check startup name: %w", err)
	}
	for _, d := range clashes {
		if d.ID() != startupID {
			return model.Startup{}, fmt.Errorf("%q: %w", name, ErrDuplicateName)
		}
	}
	st := model.Startup{ID: startupID, Name: name, NormalizedName: normalized, OwnerUID: in.OwnerUID, Status: "active"}
	if err := c.store.Set(ctx, model.StartupPath(eventID, startupID), st.Data()); err != nil {
		return model.Startup{}, fmt.Errorf("save startup: %w", err)
	}
	return st, nil
}

// InvestInput is the payload for Invest.
type InvestInput struct {
	InvestorID string  `json:"investorId" validate:"required,excludes=/"`
	StartupID  string  `json:"startupId" validate:"required,excludes=/"`
	Amount     float64 `json:"amount" validate:"gte=0"`
}

// Invest sets an investor's allocation to one startup, replacing any
// earlier amount. The event must be live, the startup must exist, and the
// investor's total may not exceed the event's starting allocation when
// one is configured.
func (c *Commands) Invest(ctx context.Context, eventID string, in InvestInput) (model.Investment, error) {
	if !model.ValidID(in.InvestorID) || !model.ValidID(in.StartupID) || in.Amount < 0 {
		return model.Investment{}, fmt.Errorf("invalid investment: %w", ErrBadRequest)
	}
	ev, err := c.liveEvent(ctx, eventID)
	if err != nil {
		return model.Investment{}, err
	}
	if err := c.startupExists(ctx, eventID, in.StartupID); err != nil {
		return model.Investment{}, err
	}
	if ev.StartingAllocation > 0 {
		mine, err := c.store.Query(ctx, model.InvestmentsPath(eventID), model.FieldUserID, in.InvestorID)
		if err != nil {
			return model.Investment{}, fmt.Errorf("load investments: %w", err)
		}
		total := in.Amount
		for _, d := range mine {
			if sid, _ := d.Data[model.FieldStartupID].(string); sid == in.StartupID {
				continue
			}
			if v, ok := d.Data[model.FieldInvestedPM].(float64); ok {
				total += v
			}
		}
		if total > ev.StartingAllocation {
			return model.Investment{}, fmt.Errorf("%.2f of %.2f: %w", total, ev.StartingAllocation, ErrOverBudget)
		}
	}
	inv := model.Investment{
		EventID:    eventID,
		InvestorID: in.InvestorID,
		StartupID:  in.StartupID,
		InvestedPM: in.Amount,
		UpdatedAt:  c.now(),
	}
	if err := c.store.Set(ctx, model.InvestmentPath(eventID, in.InvestorID, in.StartupID), inv.Data()); err != nil {
		return model.Investment{}, fmt.Errorf("save investment: %w", err)
	}
	return inv, nil
}

// RateInput is the payload for Rate.
type RateInput struct {
	Scores map[string]float64 `json:"scores" validate:"required,min=1,dive,gte=0"`
}

// Rate stores a rater's evaluation of one startup. The total score is the
// sum of the sub-scores. The event must be live.
func (c *Commands) Rate(ctx context.Context, eventID, startupID, raterID string, in RateInput) (model.Rating, error) {
	if !model.ValidID(startupID) || !model.ValidID(raterID) || len(in.Scores) == 0 {
		return model.Rating{}, fmt.Errorf("invalid rating: %w", ErrBadRequest)
	}
	if _, err := c.liveEvent(ctx, eventID); err != nil {
		return model.Rating{}, err
	}
	if err := c.startupExists(ctx, eventID, startupID); err != nil {
		return model.Rating{}, err
	}
	var total float64
	for _, v := range in.Scores {
		total += v
	}
	r := model.Rating{
		EventID:    eventID,
		StartupID:  startupID,
		RaterID:    raterID,
		TotalScore: total,
		Scores:     in.Scores,
		UpdatedAt:  c.now(),
	}
	if err := c.store.Set(ctx, model.RatingPath(eventID, startupID, raterID), r.Data()); err != nil {
		return model.Rating{}, fmt.Errorf("save rating: %w", err)
	}
	return r, nil
}

func (c *Commands) liveEvent(ctx context.Context, eventID string) (model.Event, error) {
	ev, err := c.GetEvent(ctx, eventID)
	if err != nil {
		return model.Event{}, err
	}
	if ev.Status != model.StatusLive {
		return model.Event{}, fmt.Errorf("event %s is %s: %w", eventID, ev.Status, ErrNotLive)
	}
	return ev, nil
}

func (c *Commands) startupExists(ctx context.Context, eventID, startupID string) error {
	_, err := c.store.Get(ctx, model.StartupPath(eventID, startupID))
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("startup %s: %w", startupID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load startup %s: %w", startupID, err)
	}
	return nil
}
