package ports

import (
	"context"

	"github.com/layer-3/pinwallet/core"
)

// Custody is the remote wallet-custody service
type Custody interface {
	// CreateUser registers the identity; an existing user is OutcomeAlreadyExists
	CreateUser(ctx context.Context, identity core.Identity) (core.Outcome, error)

	// IssueToken returns a fresh credential pair for the identity
	IssueToken(ctx context.Context, identity core.Identity) (core.Credentials, error)

	// InitializeAccount starts wallet creation and returns the challenge to sign.
	// An already initialized user is OutcomeAlreadyExists without a challenge.
	InitializeAccount(ctx context.Context, creds core.Credentials, accountType string, blockchains []string) (core.Initialization, error)

	// ListWallets returns the wallets of the credential's user
	ListWallets(ctx context.Context, creds core.Credentials) ([]core.WalletRecord, error)

	// TokenBalances returns the token balances of a wallet
	TokenBalances(ctx context.Context, creds core.Credentials, walletID string) ([]core.TokenBalance, error)
}
