package walk

import "errors"

var (
	// ErrValidation reports caller input the engine refuses, such as an empty
	// identity or a second start while a session is live.
	ErrValidation = errors.New("validation error")
	// ErrInvalidState reports an operation the current state does not permit.
	ErrInvalidState = errors.New("invalid state")
)
