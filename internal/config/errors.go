package config

import "errors"

// Sentinel error kinds; callers match them with errors.Is.
var (
	ErrInvalidConfig  = errors.New("invalid config")
	ErrLoadConfig     = errors.New("load config failed")
	ErrUnknownBackend = errors.New("unknown store backend")
)
