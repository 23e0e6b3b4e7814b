package pinwallet

import (
	"context"

	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/service"
)

// Client represents the public interface of the onboarding machine
type Client interface {
	// Connect runs onboarding and blocks until it ends
	Connect(ctx context.Context, identity string, mode core.Mode) (core.Status, error)

	// Retry resumes onboarding with the credentials kept by a failed run
	Retry(ctx context.Context) (core.Status, error)

	// Restore resumes a persisted session
	Restore(ctx context.Context) core.Status

	// Refresh re-fetches wallets and the balance
	Refresh(ctx context.Context) (core.Status, error)

	// Disconnect ends the session and forgets it
	Disconnect(ctx context.Context) error

	// Status returns the observable state
	Status() core.Status
}

var _ Client = (*service.Onboarding)(nil)
