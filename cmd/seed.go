package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	app "github.com/okian/pitchboard/internal/app"
	"github.com/okian/pitchboard/internal/domain/model"
)

const seedWait = 10 * time.Second

func newSeedCmd() *cobra.Command {
	var (
		startups  int
		investors int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo event, run it to the end and print its results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := newService(cfg, store)
			if err := svc.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = svc.Stop(context.Background()) }()

			view, err := seed(cmd.Context(), svc, startups, investors)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().IntVar(&startups, "startups", 3, "number of startups to create")
	cmd.Flags().IntVar(&investors, "investors", 5, "number of investors and raters")
	return cmd
}

// seed runs a full event lifecycle and waits for its results.
func seed(ctx context.Context, svc *app.Service, startups, investors int) (app.ResultsView, error) {
	if startups < 1 || investors < 1 {
		return app.ResultsView{}, fmt.Errorf("startups and investors must be positive")
	}
	ev, err := svc.CreateEvent(ctx, app.CreateEventInput{
		Name:               "Demo Day",
		HostUID:            "host-demo",
		StartingAllocation: float64(100 * startups),
	})
	if err != nil {
		return app.ResultsView{}, err
	}
	for i := range startups {
		id := fmt.Sprintf("startup-%d", i+1)
		if _, err := svc.UpsertStartup(ctx, ev.ID, id, app.UpsertStartupInput{Name: fmt.Sprintf("Startup %d", i+1)}); err != nil {
			return app.ResultsView{}, err
		}
	}
	if _, err := svc.SetStatus(ctx, ev.ID, model.StatusLive); err != nil {
		return app.ResultsView{}, err
	}
	for u := range investors {
		uid := fmt.Sprintf("investor-%d", u+1)
		for i := range startups {
			sid := fmt.Sprintf("startup-%d", i+1)
			amount := float64(((u + 1) * (i + 2)) % 100)
			if _, err := svc.Invest(ctx, ev.ID, app.InvestInput{InvestorID: uid, StartupID: sid, Amount: amount}); err != nil {
				return app.ResultsView{}, err
			}
			scores := map[string]float64{
				"team":   float64((u+i)%5 + 1),
				"market": float64((u*i)%5 + 1),
			}
			if _, err := svc.Rate(ctx, ev.ID, sid, uid, app.RateInput{Scores: scores}); err != nil {
				return app.ResultsView{}, err
			}
		}
	}
	if _, err := svc.SetStatus(ctx, ev.ID, model.StatusEnded); err != nil {
		return app.ResultsView{}, err
	}
	return waitForResults(ctx, svc, ev.ID, seedWait)
}

func waitForResults(ctx context.Context, svc *app.Service, eventID string, timeout time.Duration) (app.ResultsView, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		view, err := svc.Results(ctx, eventID)
		if err != nil {
			return app.ResultsView{}, err
		}
		if view.State == model.ResultsReady || view.State == model.ResultsFailed {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, fmt.Errorf("results for %s: %w", eventID, ctx.Err())
		case <-ticker.C:
		}
	}
}
