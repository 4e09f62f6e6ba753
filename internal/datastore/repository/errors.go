package repository

import "github.com/velociti/velociti/internal/errors"

// Sentinel errors returned by repositories.
var (
	ErrAlertNotFound  = errors.NewStd("alert not found")
	ErrAgentNotFound  = errors.NewStd("agent not found")
	ErrConfigNotFound = errors.NewStd("action agent config not found")
)
