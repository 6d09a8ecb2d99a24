package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrContractViolation marks a dispatch call that could never succeed:
	// nil incident, missing location or unusable settings. Not retried.
	ErrContractViolation = errors.New("dispatch: contract violation")

	ErrMissingLocation = fmt.Errorf("%w: incident has no location", ErrContractViolation)

	// ErrAlreadyDispatched is returned when the dedup guard rejects a repeated dispatch.
	ErrAlreadyDispatched = errors.New("dispatch: incident already dispatched")
)
