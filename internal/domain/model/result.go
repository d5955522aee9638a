package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metric names a leaderboard dimension.
type Metric string

// Leaderboard metrics.
const (
	MetricInvestment Metric = "investment"
	MetricRating     Metric = "rating"
)

// Result document ids under events/{id}/results.
const (
	ResultInvestmentLeaderboard = "investmentLeaderboard"
	ResultRatingLeaderboard     = "ratingLeaderboard"
)

// ResultDocID returns the fixed result document id for m.
func (m Metric) ResultDocID() string {
	if m == MetricRating {
		return ResultRatingLeaderboard
	}
	return ResultInvestmentLeaderboard
}

// Title returns the display title of the leaderboard for m.
func (m Metric) Title() string {
	if m == MetricRating {
		return "Startup Leaderboard - Ratings"
	}
	return "Startup Leaderboard - Investment"
}

// UnknownStartupName is shown for startups missing from the name lookup.
const UnknownStartupName = "Unknown"

// Entry is one ranked row of a leaderboard.
type Entry struct {
	Rank      int     `json:"rank"`
	StartupID string  `json:"startupId"`
	Name      string  `json:"name"`
	Total     float64 `json:"total"`
}

// Result is a persisted leaderboard.
type Result struct {
	Title       string    `json:"title"`
	Metric      Metric    `json:"metric"`
	Leaderboard []Entry   `json:"leaderboard"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Data renders the result as a document body.
func (r *Result) Data() map[string]any {
	rows := make([]any, len(r.Leaderboard))
	for i, e := range r.Leaderboard {
		rows[i] = map[string]any{
			"rank":      e.Rank,
			"startupId": e.StartupID,
			"name":      e.Name,
			"total":     e.Total,
		}
	}
	return map[string]any{
		"title":       r.Title,
		"metric":      string(r.Metric),
		"leaderboard": rows,
		"generatedAt": FormatTime(r.GeneratedAt),
	}
}

// ResultFromData decodes a result document.
func ResultFromData(d map[string]any) (Result, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return Result{}, fmt.Errorf("encode result: %w", err)
	}
	var wire struct {
		Title       string  `json:"title"`
		Metric      Metric  `json:"metric"`
		Leaderboard []Entry `json:"leaderboard"`
		GeneratedAt string  `json:"generatedAt"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}
	at, err := ParseTime(wire.GeneratedAt)
	if err != nil {
		return Result{}, err
	}
	if wire.Leaderboard == nil {
		wire.Leaderboard = []Entry{}
	}
	return Result{Title: wire.Title, Metric: wire.Metric, Leaderboard: wire.Leaderboard, GeneratedAt: at}, nil
}

// ResultsState is the consumer-facing readiness of an event's results.
type ResultsState string

// Results states derived from the event document.
const (
	ResultsNotEnded   ResultsState = "not_ended"
	ResultsProcessing ResultsState = "processing"
	ResultsFailed     ResultsState = "failed"
	ResultsReady      ResultsState = "ready"
)

// ResultsState derives the readiness a client should display. Results may
// only be read in the ready state.
func (e *Event) ResultsState() ResultsState {
	if e.Status != StatusEnded {
		return ResultsNotEnded
	}
	ready := e.ResultsReady != nil && *e.ResultsReady
	switch {
	case !ready && e.ResultsError != "":
		return ResultsFailed
	case !ready:
		return ResultsProcessing
	case e.ResultsError != "":
		return ResultsFailed
	}
	return ResultsReady
}
