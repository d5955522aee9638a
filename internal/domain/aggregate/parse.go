// Package aggregate turns raw investment and rating records into
// per-startup totals. Records are first parsed into a Contribution or a
// skip error; accumulation then only ever sees valid values.
package aggregate

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/okian/pitchboard/internal/domain/model"
)

// Kind names the record family a contribution came from.
type Kind string

// Record kinds.
const (
	KindInvestment Kind = "investment"
	KindRating     Kind = "rating"
)

// Record is a raw stored record. ParentID is the id of the document that
// owns the record's collection (the startup for a rating).
type Record struct {
	Path     string
	ParentID string
	Data     map[string]any
}

// Contribution is a validated amount attributed to one startup.
type Contribution struct {
	StartupID string
	Value     float64
}

// ParseInvestment validates an investment record. investedPM is read first;
// the legacy amount field is used only when investedPM is absent.
func ParseInvestment(r Record) (Contribution, error) {
	sid, _ := r.Data[model.FieldStartupID].(string)
	if sid == "" {
		return Contribution{}, fmt.Errorf("investment %s: %w", r.Path, ErrMissingStartupID)
	}
	raw, ok := r.Data[model.FieldInvestedPM]
	if !ok {
		raw, ok = r.Data[model.FieldLegacyAmount]
	}
	v, err := number(raw, ok)
	if err != nil {
		return Contribution{}, fmt.Errorf("investment %s: %w", r.Path, err)
	}
	if v < 0 {
		return Contribution{}, fmt.Errorf("investment %s: %w", r.Path, ErrNegativeValue)
	}
	return Contribution{StartupID: sid, Value: v}, nil
}

// ParseRating validates a rating record. The startup is the record's
// startupId field, or the owning startup document when the field is
// absent. A totalScore of zero is valid; a missing one is not.
func ParseRating(r Record) (Contribution, error) {
	sid, _ := r.Data[model.FieldStartupID].(string)
	if sid == "" {
		sid = r.ParentID
	}
	if sid == "" {
		return Contribution{}, fmt.Errorf("rating %s: %w", r.Path, ErrMissingStartupID)
	}
	raw, ok := r.Data[model.FieldTotalScore]
	if !ok {
		raw, ok = r.Data[model.FieldLegacyRating]
	}
	v, err := number(raw, ok)
	if err != nil {
		return Contribution{}, fmt.Errorf("rating %s: %w", r.Path, err)
	}
	return Contribution{StartupID: sid, Value: v}, nil
}

// ParseStartupName returns the display name of a startup record. Records
// without a non-empty name are left out of the lookup.
func ParseStartupName(data map[string]any) (string, bool) {
	name, _ := data[model.FieldName].(string)
	return name, name != ""
}

func number(raw any, present bool) (float64, error) {
	if !present || raw == nil {
		return 0, ErrMissingValue
	}
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q: %w", n, ErrNonNumericValue)
		}
		v = f
	default:
		return 0, fmt.Errorf("%T: %w", raw, ErrNonNumericValue)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNonNumericValue
	}
	return v, nil
}
