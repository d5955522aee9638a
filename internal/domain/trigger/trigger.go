// Package trigger decides whether an event document change should start
// a results computation.
package trigger

import "github.com/okian/pitchboard/internal/domain/model"

// Decision is the outcome of inspecting a change.
type Decision string

// Decisions.
const (
	Run     Decision = "run"
	Ignored Decision = "ignored"
)

// Decide returns Run only for a transition into ended. A change whose
// before-image is already ended never runs, whatever the after-image says,
// so redelivery and unrelated edits to an ended event are ignored.
func Decide(before, after model.Status) Decision {
	if after != model.StatusEnded || before == model.StatusEnded {
		return Ignored
	}
	return Run
}

// ShouldRun reports whether Decide returns Run.
func ShouldRun(before, after model.Status) bool {
	return Decide(before, after) == Run
}

// EndedNow reports whether the change is exactly live -> ended, the
// transition that notifies the host.
func EndedNow(before, after model.Status) bool {
	return before == model.StatusLive && after == model.StatusEnded
}

// WentLive reports whether the change is exactly setup -> live.
func WentLive(before, after model.Status) bool {
	return before == model.StatusSetup && after == model.StatusLive
}
