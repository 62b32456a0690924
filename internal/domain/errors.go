package domain

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("not found")
	// ErrRuleNotFound is returned for names outside the rule catalog.
	ErrRuleNotFound = errors.New("alert rule not found")
	// ErrInvalidRule marks a catalog entry the evaluator cannot interpret.
	ErrInvalidRule = errors.New("invalid alert rule")
	// ErrInvalidTransition is returned when an alert cannot move to the requested status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownJobType is returned by the worker for job types without a handler.
	ErrUnknownJobType = errors.New("unknown job type")
	// ErrStoreUnavailable is returned when a backend cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidArgument marks malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
)
