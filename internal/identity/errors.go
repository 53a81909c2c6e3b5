package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication matches every *AuthenticationError via errors.Is.
	ErrAuthentication = errors.New("authentication failed")
	// ErrLoginCancelled is reported when the user abandons the login.
	ErrLoginCancelled = errors.New("login cancelled")
	// ErrSessionClosed is returned once the session has been torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrLoggedOut is returned to a login that was overtaken by Logout.
	ErrLoggedOut = errors.New("logged out during login")
	// ErrAnonymous is returned when a provider yields no usable identity.
	ErrAnonymous = errors.New("provider returned an anonymous principal")
)

// AuthenticationError means no principal could be obtained.
// Never retried automatically.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrAuthentication, e.Err)
}

func (e *AuthenticationError) Unwrap() error        { return e.Err }
func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }
