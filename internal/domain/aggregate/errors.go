package aggregate

import "errors"

// Reasons a record is skipped. Skips are never fatal to a run.
var (
	ErrMissingStartupID = errors.New("missing startup id")
	ErrMissingValue     = errors.New("missing value")
	ErrNonNumericValue  = errors.New("non-numeric value")
	ErrNegativeValue    = errors.New("negative value")
)

// Reason returns a stable label for a skip error, used in metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingStartupID):
		return "missing_startup_id"
	case errors.Is(err, ErrMissingValue):
		return "missing_value"
	case errors.Is(err, ErrNonNumericValue):
		return "non_numeric_value"
	case errors.Is(err, ErrNegativeValue):
		return "negative_value"
	}
	return "other"
}
