package ports

import (
	"context"

	"github.com/layer-3/pinwallet/core"
)

// SigningProvider executes challenges behind the user's PIN
type SigningProvider interface {
	IsReady() bool

	// SetAuthentication must be called before Execute
	SetAuthentication(creds core.Credentials)

	// Execute hands over the challenge; callback fires at most once
	Execute(challengeID string, callback func(err error))

	DeviceID(ctx context.Context) (string, error)
}
