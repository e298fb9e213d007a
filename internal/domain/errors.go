package domain

import "errors"

// Domain errors returned to API callers. Background loops never surface
// these as fatal; they log and continue.
var (
	// ErrAlreadyClaimed is returned when an agent tries to claim an account
	// currently held by a different agent
	ErrAlreadyClaimed = errors.New("account is already being handled by another agent")

	// ErrNotFound is returned when a referenced agent or account record
	// does not exist
	ErrNotFound = errors.New("record not found")

	// ErrAgentOffline is returned for operations that require a live session
	ErrAgentOffline = errors.New("agent is not logged in")

	// ErrUnknownCampaign is returned when a campaign id cannot be resolved
	ErrUnknownCampaign = errors.New("unknown campaign")
)
