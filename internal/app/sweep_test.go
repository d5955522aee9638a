package service

import (
	"context"
	"testing"
	"time"

	"github.com/okian/pitchboard/internal/adapters/docstore"
	"github.com/okian/pitchboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// endEvent drives a new event through its lifecycle with one investment.
func endEvent(ctx context.Context, s *Service) model.Event {
	ev, err := s.CreateEvent(ctx, CreateEventInput{Name: "Demo", HostUID: "host-1"})
	So(err, ShouldBeNil)
	_, err = s.UpsertStartup(ctx, ev.ID, "s1", UpsertStartupInput{Name: "Acme"})
	So(err, ShouldBeNil)
	_, err = s.SetStatus(ctx, ev.ID, model.StatusLive)
	So(err, ShouldBeNil)
	_, err = s.Invest(ctx, ev.ID, InvestInput{InvestorID: "u1", StartupID: "s1", Amount: 30})
	So(err, ShouldBeNil)
	_, err = s.SetStatus(ctx, ev.ID, model.StatusEnded)
	So(err, ShouldBeNil)
	return ev
}

func TestRestartRecoversEndedEvents(t *testing.T) {
	ctx := context.Background()

	Convey("Given an event that ended while no service was running", t, func() {
		dir := t.TempDir()
		store, err := docstore.OpenBadger(dir)
		So(err, ShouldBeNil)
		ev := endEvent(ctx, New(store, WithNow(clock)))
		view, err := New(store).Results(ctx, ev.ID)
		So(err, ShouldBeNil)
		So(view.State, ShouldEqual, model.ResultsProcessing)
		So(store.Close(), ShouldBeNil)

		Convey("When the store is reopened and the service starts", func() {
			reopened, err := docstore.OpenBadger(dir)
			So(err, ShouldBeNil)
			defer reopened.Close()
			s := New(reopened, WithWorkerCount(1), WithNow(clock))
			So(s.Start(ctx), ShouldBeNil)
			defer func() { _ = s.Stop(ctx) }()

			Convey("Then the missed transition is computed", func() {
				view := waitForState(s, ev.ID, model.ResultsReady)
				So(view.State, ShouldEqual, model.ResultsReady)
				So(view.Investment.Leaderboard, ShouldResemble, []model.Entry{{Rank: 1, StartupID: "s1", Name: "Acme", Total: 30}})
			})
		})
	})
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	Convey("Given ended, failed and live events in a store", t, func() {
		store := docstore.NewMemStore()
		seed(store, "pending", map[string]string{"A": "Alpha"}, map[string]float64{"u1_A": 5}, nil)
		seed(store, "failed", nil, nil, nil)
		So(store.Update(ctx, model.EventPath("failed"), map[string]any{
			model.FieldResultsReady: false,
			model.FieldResultsError: "boom",
		}), ShouldBeNil)
		So(store.Set(ctx, model.EventPath("live"), map[string]any{"status": "live"}), ShouldBeNil)
		s := New(store, WithNow(clock))

		Convey("When reconciling", func() {
			n, err := s.Reconcile(ctx)

			Convey("Then only the ended event without an attempt is computed", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				So(*eventDoc(store, "pending").ResultsReady, ShouldBeTrue)
				So(eventDoc(store, "failed").ResultsError, ShouldEqual, "boom")
				So(eventDoc(store, "live").ResultsReady, ShouldBeNil)
			})

			Convey("Then a second pass has nothing to do", func() {
				n, err := s.Reconcile(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})
	})
}

func TestDroppedChangeIsSwept(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service whose queue rejects every change", t, func() {
		store := docstore.NewMemStore()
		s := New(store, WithWorkerCount(1), WithSweepInterval(time.Hour), WithNow(clock))
		So(s.Start(ctx), ShouldBeNil)
		defer func() { _ = s.Stop(ctx) }()
		So(s.queue.Close(), ShouldBeNil)

		Convey("When an event ends", func() {
			ev := endEvent(ctx, s)

			Convey("Then the dropped transition still produces results", func() {
				view := waitForState(s, ev.ID, model.ResultsReady)
				So(view.State, ShouldEqual, model.ResultsReady)
			})
		})
	})
}
