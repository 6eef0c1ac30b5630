package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOrchestration marks a failed origin fetch/staging attempt.
	ErrOrchestration = errors.New("orchestration failed")
	// ErrGeneration marks a failed projection generation; never persisted.
	ErrGeneration = errors.New("projection generation failed")
	// ErrProxy marks a downstream forwarding failure.
	ErrProxy = errors.New("downstream proxy failed")
)
