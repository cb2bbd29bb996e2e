package common

import "errors"

// Error taxonomy shared by every layer. Callers wrap these with fmt.Errorf
// and test them with errors.Is.
var (
	// ErrConfiguration marks a model or table that is missing or unreadable
	// at startup. The process must not serve traffic.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound marks a client id that is absent from the feature table.
	ErrNotFound = errors.New("client not found")

	// ErrSchema marks a feature row whose shape does not match the model's
	// expected input.
	ErrSchema = errors.New("schema mismatch")

	// ErrOutcomeUnavailable marks a label-based request against a table
	// loaded without the outcome column.
	ErrOutcomeUnavailable = errors.New("outcome column not available")
)
