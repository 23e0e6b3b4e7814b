package service

import (
	"errors"
	"net/http"

	"github.com/layer-3/pinwallet/core"
)

// User-facing messages reported through Status.Message
const (
	MsgInvalidIdentity    = "User ID must be at least 5 characters"
	MsgSignerNotReady     = "App ID is not configured. Please check your configuration."
	MsgCreateUserFailed   = "Failed to create user"
	MsgTokenFailed        = "Failed to get user token"
	MsgUserNotFound       = "User not found. Please use 'Create Wallet' if this is your first time."
	MsgInvalidUser        = "Invalid user ID or API parameters"
	MsgTimedOut           = "Request timed out. Please try again."
	MsgInitializeFailed   = "Failed to initialize user"
	MsgCreateWalletFailed = "Failed to create wallet"
	MsgWalletPending      = "Wallet creation pending. Please try again."
	MsgSessionExpired     = "Session expired. Please reconnect."
	MsgConnectionFailed   = "Connection failed"
)

// remoteError is implemented by custody API errors
type remoteError interface {
	HTTPStatus() int
	RemoteMessage() string
}

// stepError is a failed onboarding step with its user-facing message
type stepError struct {
	message string
	err     error

	// retain keeps the credentials in memory for Retry
	retain bool
}

func (e *stepError) Error() string {
	if e.err == nil {
		return e.message
	}
	return e.message + ": " + e.err.Error()
}

func (e *stepError) Unwrap() error {
	return e.err
}

func fail(err error, fallback string) *stepError {
	return &stepError{message: describe(err, fallback), err: err}
}

// describe picks the message shown for err
func describe(err error, fallback string) string {
	if errors.Is(err, core.ErrTimeout) {
		return MsgTimedOut
	}
	var remote remoteError
	if errors.As(err, &remote) && remote.RemoteMessage() != "" {
		return remote.RemoteMessage()
	}
	return fallback
}

// tokenFailure maps an IssueToken error; login mode always reads as an
// unknown user.
func tokenFailure(err error, mode core.Mode) *stepError {
	if mode == core.ModeLogin {
		return &stepError{message: MsgUserNotFound, err: err}
	}
	var remote remoteError
	if errors.As(err, &remote) && remote.HTTPStatus() == http.StatusBadRequest {
		return &stepError{message: MsgInvalidUser, err: err}
	}
	return fail(err, MsgTokenFailed)
}
