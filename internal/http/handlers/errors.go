package handlers

// Error codes returned in ErrorResponse.Code. Clients branch on these, not
// on the message.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// ErrCodeModeratorRequired rejects a write without X-Moderator-ID.
	ErrCodeModeratorRequired = "moderator_required"
	// ErrCodeInvalidDuration rejects a negative mute duration.
	ErrCodeInvalidDuration = "invalid_duration"
	ErrCodeListFailed      = "list_failed"
	ErrCodeActionFailed    = "action_failed"
)
