package service

import "errors"

// Sentinel kinds returned by the service.
var (
	ErrNotFound          = errors.New("not found")
	ErrBadRequest        = errors.New("bad request")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotEnded          = errors.New("event has not ended")
	ErrNotLive           = errors.New("event is not live")
	ErrDuplicateName     = errors.New("startup name already taken in this event")
	ErrOverBudget        = errors.New("investment exceeds starting allocation")
	ErrCodeExhausted     = errors.New("could not allocate a unique event code")
)
