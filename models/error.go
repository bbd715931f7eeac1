package models

import "errors"

// ErrorMessageResponse returns the error message response struct
type ErrorMessageResponse struct {
	Response MessageError
}

// MessageError contains the inner details for the error message response
type MessageError struct {
	Message string
	Error   string
}

// HealthCheckResponse is the body of the /health endpoint
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}

// Engine error taxonomy. Wrap with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidField         = errors.New("invalid field")
	ErrNoEligibleOfficers   = errors.New("no eligible officers")
	ErrCounterContention    = errors.New("counter contention")
	ErrSequenceExhausted    = errors.New("sequence exhausted for period")
	ErrNotFound             = errors.New("not found")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrTimeout              = errors.New("timeout")
	ErrConflict             = errors.New("concurrent modification")
	ErrEffectFailure        = errors.New("effect failure")
)
