package core

import "errors"

var (
	ErrInvalidIdentity        = errors.New("user ID must be at least 5 characters")
	ErrInvalidMode            = errors.New("mode must be create or login")
	ErrOnboardingInFlight     = errors.New("onboarding already in progress")
	ErrAlreadyConnected       = errors.New("wallet already connected")
	ErrNothingToRetry         = errors.New("no retained credentials to retry with")
	ErrNotConnected           = errors.New("wallet not connected")
	ErrNoSession              = errors.New("connect the wallet through onboarding first")
	ErrSessionNotFound        = errors.New("session entry not found")
	ErrSignerNotReady         = errors.New("signing provider not ready: app id is not configured")
	ErrSigningFailed          = errors.New("challenge execution failed")
	ErrUnknownChallenge       = errors.New("unknown or completed challenge")
	ErrWalletPending          = errors.New("wallet creation pending")
	ErrUnauthorized           = errors.New("custody credentials rejected")
	ErrTimeout                = errors.New("custody request timed out")
	ErrSwitchChainUnsupported = errors.New("wallet does not support switching chains at runtime")
	ErrConnectorNotFound      = errors.New("connector not registered")
	ErrStoreOperationFailed   = errors.New("store operation failed")
)
