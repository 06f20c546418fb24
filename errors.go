package vapor

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDetails is returned when account name or password is empty
	// and no silent path is available.
	ErrMissingDetails = errors.New("account name and password required")
	// ErrOldSession is returned when the stored OAuth token was rejected by
	// the platform; the stored session artifacts have been cleared.
	ErrOldSession = errors.New("stored session is no longer valid")
	// ErrLoginThrottled is returned when the per-account login budget is
	// exhausted.
	ErrLoginThrottled = errors.New("login attempts rate limited")
	// ErrNotLoggedIn is returned by authenticator operations when no live
	// session client exists.
	ErrNotLoggedIn = errors.New("no active session")
	// ErrNoSharedSecret is returned by guard-code generation when the main
	// account holds no authenticator secret.
	ErrNoSharedSecret = errors.New("no shared secret for account")
	// ErrNoPendingEnrollment is returned by FinalizeTwoFactor when
	// enrollment was never started.
	ErrNoPendingEnrollment = errors.New("no pending authenticator enrollment")
	// ErrNoRevocationCode is returned by RevokeTwoFactor when the account
	// holds no revocation code.
	ErrNoRevocationCode = errors.New("no revocation code for account")
	// ErrEngineNotReady is returned when the engine was not fully built.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RemoteError preserves a platform rejection verbatim so the caller can
// surface the platform's own message. Op names the operation that failed.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func remoteErr(op string, err error) error {
	return &RemoteError{Op: op, Message: err.Error()}
}
