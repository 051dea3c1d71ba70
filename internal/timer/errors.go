package timer

import "errors"

var (
	// ErrInvalidID is returned when a room id is empty or malformed.
	ErrInvalidID = errors.New("invalid timer id")

	// ErrNotFound is returned when a room id is not in the registry.
	ErrNotFound = errors.New("timer not found")

	// ErrInvalidState is returned when an action is illegal for the current
	// running/stopped state.
	ErrInvalidState = errors.New("action not valid in current state")

	// ErrNoDuration is returned when starting a timer with no remaining time.
	ErrNoDuration = errors.New("no duration set")
)
