package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/pitchboard/internal/adapters/docstore"
	"github.com/okian/pitchboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func waitForState(s *Service, eventID string, want model.ResultsState) ResultsView {
	deadline := time.Now().Add(3 * time.Second)
	for {
		view, err := s.Results(context.Background(), eventID)
		if err == nil && view.State == want {
			return view
		}
		if time.Now().After(deadline) {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServiceEndToEnd(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service over a badger store", t, func() {
		store, err := docstore.OpenBadger("", docstore.WithInMemory())
		So(err, ShouldBeNil)
		defer store.Close()
		s := New(store, WithWorkerCount(2), WithRetry(3, time.Millisecond), WithNow(clock))
		So(s.Start(ctx), ShouldBeNil)
		defer func() { _ = s.Stop(ctx) }()

		ev, err := s.CreateEvent(ctx, CreateEventInput{Name: "Demo", HostUID: "host-1"})
		So(err, ShouldBeNil)
		_, err = s.UpsertStartup(ctx, ev.ID, "s1", UpsertStartupInput{Name: "Acme"})
		So(err, ShouldBeNil)
		_, err = s.UpsertStartup(ctx, ev.ID, "s2", UpsertStartupInput{Name: "Beta"})
		So(err, ShouldBeNil)
		_, err = s.SetStatus(ctx, ev.ID, model.StatusLive)
		So(err, ShouldBeNil)
		_, err = s.Invest(ctx, ev.ID, InvestInput{InvestorID: "u1", StartupID: "s2", Amount: 40})
		So(err, ShouldBeNil)
		_, err = s.Rate(ctx, ev.ID, "s1", "j1", RateInput{Scores: map[string]float64{"q1": 5}})
		So(err, ShouldBeNil)

		Convey("When results are requested while live", func() {
			view, err := s.Results(ctx, ev.ID)
			So(err, ShouldBeNil)
			So(view.State, ShouldEqual, model.ResultsNotEnded)
			So(view.Investment, ShouldBeNil)
		})

		Convey("When the event ends", func() {
			_, err := s.SetStatus(ctx, ev.ID, model.StatusEnded)
			So(err, ShouldBeNil)
			view := waitForState(s, ev.ID, model.ResultsReady)

			Convey("Then the results become ready through the change feed", func() {
				So(view.State, ShouldEqual, model.ResultsReady)
				So(view.Investment.Leaderboard, ShouldResemble, []model.Entry{{Rank: 1, StartupID: "s2", Name: "Beta", Total: 40}})
				So(view.Rating.Leaderboard, ShouldResemble, []model.Entry{{Rank: 1, StartupID: "s1", Name: "Acme", Total: 5}})
				So(view.GeneratedAt.Equal(fixedNow), ShouldBeTrue)
			})

			Convey("Then the host is notified in both places", func() {
				id := NotificationID(NotificationEventEnded, ev.ID)
				root, err := store.Get(ctx, model.NotificationPath(id))
				So(err, ShouldBeNil)
				So(root.Data["userUid"], ShouldEqual, "host-1")
				So(root.Data["type"], ShouldEqual, NotificationEventEnded)
				mirror, err := store.Get(ctx, model.UserNotificationPath("host-1", id))
				So(err, ShouldBeNil)
				So(mirror.Data["eventId"], ShouldEqual, ev.ID)
				So(mirror.Data["read"], ShouldEqual, false)
			})

			Convey("Then a manual recompute succeeds", func() {
				out, err := s.Recompute(ctx, ev.ID)
				So(err, ShouldBeNil)
				So(out.Ran, ShouldBeTrue)
				So(out.InvestmentEntries, ShouldEqual, 1)
			})
		})

		Convey("When a recompute is requested before the end", func() {
			_, err := s.Recompute(ctx, ev.ID)
			So(errors.Is(err, ErrNotEnded), ShouldBeTrue)
		})

		Convey("Then stats report the running pool", func() {
			stats := s.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["workerCount"], ShouldEqual, 2)
		})
	})
}

func TestControllerDuplicateDelivery(t *testing.T) {
	ctx := context.Background()

	Convey("Given a controller over an ended event", t, func() {
		store := docstore.NewMemStore()
		seed(store, "e1", map[string]string{"A": "Alpha"}, map[string]float64{"u1_A": 5}, nil)
		c := NewController(newPipeline(store), NewNotifier(store), nil)
		change := docstore.Change{
			ID:     "c1",
			Path:   model.EventPath("e1"),
			Before: map[string]any{"status": "live"},
			After:  map[string]any{"status": "ended", "hostUid": "host-1", "name": "Demo"},
		}

		Convey("When the ended transition is delivered", func() {
			So(c.HandleChange(ctx, change), ShouldBeNil)
			_, err := resultDoc(store, "e1", model.MetricInvestment)
			So(err, ShouldBeNil)

			Convey("Then redelivery is safe and produces the same result", func() {
				first, _ := resultDoc(store, "e1", model.MetricInvestment)
				So(c.HandleChange(ctx, change), ShouldBeNil)
				second, _ := resultDoc(store, "e1", model.MetricInvestment)
				So(second, ShouldResemble, first)
				notes, err := store.List(ctx, model.NotificationsCollection)
				So(err, ShouldBeNil)
				So(len(notes), ShouldEqual, 1)
			})
		})

		Convey("When the follow-up readiness write is delivered", func() {
			follow := change
			follow.Before = map[string]any{"status": "ended"}
			follow.After = map[string]any{"status": "ended", "resultsReady": true}
			So(c.HandleChange(ctx, follow), ShouldBeNil)

			Convey("Then the aggregator is not invoked", func() {
				_, err := resultDoc(store, "e1", model.MetricInvestment)
				So(errors.Is(err, docstore.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a change is not for an event document", func() {
			other := change
			other.Path = "events/e1/results/investmentLeaderboard"
			So(c.HandleChange(ctx, other), ShouldBeNil)
			_, err := resultDoc(store, "e1", model.MetricInvestment)
			So(errors.Is(err, docstore.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a change whose pipeline fails", t, func() {
		mem := docstore.NewMemStore()
		seed(mem, "e2", nil, nil, nil)
		c := NewController(newPipeline(&failingStore{Store: mem, failList: "startups"}), nil, nil)
		err := c.HandleChange(ctx, docstore.Change{
			ID:     "c2",
			Path:   model.EventPath("e2"),
			Before: map[string]any{"status": "live"},
			After:  map[string]any{"status": "ended"},
		})

		Convey("Then the error is returned for redelivery", func() {
			So(errors.Is(err, errUnavailable), ShouldBeTrue)
		})
	})
}

func TestHostNotifications(t *testing.T) {
	ctx := context.Background()

	Convey("Given a controller with a notifier", t, func() {
		store := docstore.NewMemStore()
		c := NewController(newPipeline(store), NewNotifier(store), nil)
		after := map[string]any{"status": "setup", "hostUid": "host-1", "name": "Demo"}
		note := func(kind string) (docstore.Document, error) {
			return store.Get(ctx, model.UserNotificationPath("host-1", NotificationID(kind, "e1")))
		}

		Convey("When an event document is created", func() {
			So(c.HandleChange(ctx, docstore.Change{ID: "c1", Path: model.EventPath("e1"), After: after}), ShouldBeNil)

			Convey("Then the host gets an event_created notification", func() {
				d, err := note(NotificationEventCreated)
				So(err, ShouldBeNil)
				So(d.Data["type"], ShouldEqual, NotificationEventCreated)
				So(d.Data["message"], ShouldContainSubstring, "has been created")
			})
		})

		Convey("When the event goes live", func() {
			live := map[string]any{"status": "live", "hostUid": "host-1", "name": "Demo"}
			So(c.HandleChange(ctx, docstore.Change{ID: "c2", Path: model.EventPath("e1"), Before: after, After: live}), ShouldBeNil)

			Convey("Then the host gets an event_live notification only", func() {
				d, err := note(NotificationEventLive)
				So(err, ShouldBeNil)
				So(d.Data["title"], ShouldEqual, "Event is now Live")
				_, err = note(NotificationEventCreated)
				So(errors.Is(err, docstore.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an unrelated edit is delivered", func() {
			edited := map[string]any{"status": "setup", "hostUid": "host-1", "name": "Renamed"}
			So(c.HandleChange(ctx, docstore.Change{ID: "c3", Path: model.EventPath("e1"), Before: after, After: edited}), ShouldBeNil)

			Convey("Then nothing is written", func() {
				notes, err := store.List(ctx, model.NotificationsCollection)
				So(err, ShouldBeNil)
				So(notes, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a notifier", t, func() {
		store := docstore.NewMemStore()
		n := NewNotifier(store)

		Convey("When the kind is unknown", func() {
			err := n.Notify(ctx, "event_paused", model.Event{ID: "e1", HostUID: "h"})
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
		})

		Convey("When the event has no host", func() {
			So(n.Notify(ctx, NotificationEventLive, model.Event{ID: "e1"}), ShouldBeNil)
			notes, err := store.List(ctx, model.NotificationsCollection)
			So(err, ShouldBeNil)
			So(notes, ShouldBeEmpty)
		})
	})
}

func TestFailedResultsView(t *testing.T) {
	ctx := context.Background()

	Convey("Given an ended event whose computation failed", t, func() {
		store := docstore.NewMemStore()
		seed(store, "e1", nil, nil, nil)
		So(store.Update(ctx, model.EventPath("e1"), map[string]any{
			model.FieldResultsReady: false,
			model.FieldResultsError: "fetch startups: storage unavailable",
		}), ShouldBeNil)

		Convey("When its results are read", func() {
			view, err := New(store).Results(ctx, "e1")

			Convey("Then clients get a generic message and operators the cause", func() {
				So(err, ShouldBeNil)
				So(view.State, ShouldEqual, model.ResultsFailed)
				So(view.Error, ShouldEqual, ResultsFailedMessage)
				So(view.Cause, ShouldEqual, "fetch startups: storage unavailable")
			})
		})
	})
}
