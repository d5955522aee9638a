// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an event.
type Status string

// Event lifecycle states.
const (
	StatusSetup Status = "setup"
	StatusLive  Status = "live"
	StatusEnded Status = "ended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSetup, StatusLive, StatusEnded:
		return true
	}
	return false
}

// CanTransition reports whether an event may move from s to next.
// Transitions are forward only: setup -> live -> ended.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusSetup:
		return next == StatusLive
	case StatusLive:
		return next == StatusEnded
	}
	return false
}

// Event document field names.
const (
	FieldName               = "name"
	FieldStatus             = "status"
	FieldHostUID            = "hostUid"
	FieldStartingAllocation = "premoneyPerUser"
	FieldCode               = "code"
	FieldCreatedAt          = "createdAt"
	FieldUpdatedAt          = "updatedAt"
	FieldResultsReady       = "resultsReady"
	FieldResultsGeneratedAt = "resultsGeneratedAt"
	FieldResultsError       = "resultsError"
)

// Event is one pitch competition.
type Event struct {
	ID                 string
	Name               string
	Status             Status
	HostUID            string
	StartingAllocation float64
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Set only by the results pipeline. ResultsReady is nil until the
	// first computation attempt.
	ResultsReady       *bool
	ResultsGeneratedAt time.Time
	ResultsError       string
}

// Data renders the event as a document body. Pipeline-owned fields are
// included only when set.
func (e *Event) Data() map[string]any {
	d := map[string]any{
		FieldName:               e.Name,
		FieldCode:               e.ID,
		FieldStatus:             string(e.Status),
		FieldHostUID:            e.HostUID,
		FieldStartingAllocation: e.StartingAllocation,
		FieldCreatedAt:          FormatTime(e.CreatedAt),
		FieldUpdatedAt:          FormatTime(e.UpdatedAt),
	}
	if e.ResultsReady != nil {
		d[FieldResultsReady] = *e.ResultsReady
	}
	if !e.ResultsGeneratedAt.IsZero() {
		d[FieldResultsGeneratedAt] = FormatTime(e.ResultsGeneratedAt)
	}
	if e.ResultsError != "" {
		d[FieldResultsError] = e.ResultsError
	}
	return d
}

// EventFromData decodes an event document. Unknown or mistyped fields are
// left at their zero value.
func EventFromData(id string, d map[string]any) Event {
	e := Event{
		ID:                 id,
		Name:               stringField(d, FieldName),
		Status:             StatusOf(d),
		HostUID:            stringField(d, FieldHostUID),
		CreatedAt:          timeField(d, FieldCreatedAt),
		UpdatedAt:          timeField(d, FieldUpdatedAt),
		ResultsGeneratedAt: timeField(d, FieldResultsGeneratedAt),
		ResultsError:       stringField(d, FieldResultsError),
	}
	if v, ok := d[FieldStartingAllocation].(float64); ok {
		e.StartingAllocation = v
	}
	if v, ok := d[FieldResultsReady].(bool); ok {
		e.ResultsReady = &v
	}
	return e
}

// StatusOf reads the status field of a raw event document. A nil document
// (no before-image) has the empty status.
func StatusOf(d map[string]any) Status {
	if d == nil {
		return ""
	}
	s, _ := d[FieldStatus].(string)
	return Status(s)
}

// Startup document field names.
const (
	FieldNormalizedName = "normalizedName"
	FieldOwnerUID       = "ownerUid"
	FieldStartupStatus  = "status"
)

// Startup is a pitching company registered under one event.
type Startup struct {
	ID             string
	Name           string
	NormalizedName string
	OwnerUID       string
	Status         string
}

// Data renders the startup as a document body.
func (s *Startup) Data() map[string]any {
	return map[string]any{
		FieldName:           s.Name,
		FieldNormalizedName: s.NormalizedName,
		FieldOwnerUID:       s.OwnerUID,
		FieldStartupStatus:  s.Status,
	}
}

// NormalizeName lowercases and trims a startup name for uniqueness checks.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Investment and rating document field names.
const (
	FieldUserID       = "userId"
	FieldEventID      = "eventId"
	FieldStartupID    = "startupId"
	FieldInvestedPM   = "investedPM"
	FieldLegacyAmount = "amount"
	FieldRaterID      = "raterId"
	FieldTotalScore   = "totalScore"
	FieldLegacyRating = "rating"
	FieldScores       = "scores"
)

// Investment is one participant's allocation to one startup.
type Investment struct {
	EventID    string
	InvestorID string
	StartupID  string
	InvestedPM float64
	UpdatedAt  time.Time
}

// Data renders the investment as a document body.
func (i *Investment) Data() map[string]any {
	return map[string]any{
		FieldUserID:     i.InvestorID,
		FieldEventID:    i.EventID,
		FieldStartupID:  i.StartupID,
		FieldInvestedPM: i.InvestedPM,
		FieldUpdatedAt:  FormatTime(i.UpdatedAt),
	}
}

// Rating is one rater's evaluation of one startup. Scores holds the
// per-question sub-scores and is opaque to aggregation.
type Rating struct {
	EventID    string
	StartupID  string
	RaterID    string
	TotalScore float64
	Scores     map[string]float64
	UpdatedAt  time.Time
}

// Data renders the rating as a document body.
func (r *Rating) Data() map[string]any {
	scores := make(map[string]any, len(r.Scores))
	for k, v := range r.Scores {
		scores[k] = v
	}
	return map[string]any{
		FieldRaterID:    r.RaterID,
		FieldStartupID:  r.StartupID,
		FieldTotalScore: r.TotalScore,
		FieldScores:     scores,
		FieldUpdatedAt:  FormatTime(r.UpdatedAt),
	}
}

// FormatTime encodes a timestamp for storage. The zero time encodes as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime decodes a stored timestamp.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func stringField(d map[string]any, key string) string {
	s, _ := d[key].(string)
	return s
}

func timeField(d map[string]any, key string) time.Time {
	t, _ := ParseTime(stringField(d, key))
	return t
}
