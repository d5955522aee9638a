package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	app "github.com/okian/pitchboard/internal/app"
)

func newResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <event-id>",
		Short: "Print the stored results of an event as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *app.Service) error {
				view, err := svc.Results(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if view.Cause != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "resultsError: %s\n", view.Cause)
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func newRecomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <event-id>",
		Short: "Recompute leaderboards for an ended event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *app.Service) error {
				out, err := svc.Recompute(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}

// withService opens the configured store, runs fn with an unstarted
// service and closes the store.
func withService(fn func(*app.Service) error) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(newService(cfg, store))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
