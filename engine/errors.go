package engine

import "errors"

var (
	// ErrProfileInvalid wraps the validation failure that kept a shot from
	// starting.
	ErrProfileInvalid = errors.New("profile failed validation")

	// ErrShotInProgress is returned when StartShot is called while a shot is
	// already running.
	ErrShotInProgress = errors.New("a shot is already in progress")

	// ErrNoActiveShot is returned when Abort is called with nothing running.
	ErrNoActiveShot = errors.New("no active shot")
)
