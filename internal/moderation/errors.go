package moderation

import "errors"

var (
	// ErrInvalidDuration is returned by MuteFor when the duration is not
	// strictly positive.
	ErrInvalidDuration = errors.New("mute duration must be positive")

	// ErrInvalidPattern is returned when a job template pattern does not
	// compile.
	ErrInvalidPattern = errors.New("invalid template pattern")
)
