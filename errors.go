package pinwallet

import "github.com/layer-3/pinwallet/core"

// Errors callers of this package match with errors.Is
var (
	// ErrInvalidIdentity is returned when a user id is shorter than five characters
	ErrInvalidIdentity = core.ErrInvalidIdentity

	// ErrOnboardingInFlight is returned when onboarding is already running
	ErrOnboardingInFlight = core.ErrOnboardingInFlight

	// ErrAlreadyConnected is returned when a wallet is already connected
	ErrAlreadyConnected = core.ErrAlreadyConnected

	// ErrNothingToRetry is returned when no credentials were retained for a retry
	ErrNothingToRetry = core.ErrNothingToRetry

	// ErrNoSession is returned when the connector finds no persisted session
	ErrNoSession = core.ErrNoSession

	// ErrSignerNotReady is returned when no app id is configured
	ErrSignerNotReady = core.ErrSignerNotReady

	// ErrWalletPending is returned when the wallet is not indexed yet
	ErrWalletPending = core.ErrWalletPending

	// ErrUnauthorized is returned when the custody service rejects the credentials
	ErrUnauthorized = core.ErrUnauthorized
)
