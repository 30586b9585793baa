package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a state pair is not in the lifecycle table
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not one of the lifecycle states
	ErrInvalidState = errors.New("invalid state")

	// ErrValidationRequired is returned when approval is requested on data that did not pass validation
	ErrValidationRequired = errors.New("validation must pass before approval")
)
