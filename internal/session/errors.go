package session

import "errors"

// ErrSessionNotFound is returned by Registry.Enqueue when no session is
// registered under the id.
var ErrSessionNotFound = errors.New("session not found")
