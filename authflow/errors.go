package authflow

import "github.com/pkg/errors"

var (
	// ErrNoSignInSession is returned when a callback arrives without a
	// pending sign-in session to match it against.
	ErrNoSignInSession = errors.New("no sign-in session")

	// ErrStateMismatch is returned when the state echoed by the provider
	// does not match the one stored at sign-in initiation.
	ErrStateMismatch = errors.New("state mismatch")
)
