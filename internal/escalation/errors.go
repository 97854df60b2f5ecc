package escalation

import "errors"

// Repository errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrPolicyNotFound   = errors.New("escalation policy not found")
)

// State machine errors.
var (
	ErrInvalidStatus = errors.New("invalid incident status")
)
