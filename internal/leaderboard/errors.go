package leaderboard

import "errors"

// ErrSessionNotFound is returned when a session was closed, expired, or
// never existed. Callers should open a fresh session.
var ErrSessionNotFound = errors.New("leaderboard session not found")
