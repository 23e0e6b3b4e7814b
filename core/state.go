package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ConnectionState is the observable state of the onboarding machine
type ConnectionState string

const (
	StateDisconnected        ConnectionState = "disconnected"
	StateCreatingIdentity    ConnectionState = "creating-identity"
	StateIssuingCredentials  ConnectionState = "issuing-credentials"
	StateInitializingAccount ConnectionState = "initializing-account"
	StateAwaitingSignature   ConnectionState = "awaiting-signature"
	StateDiscoveringWallets  ConnectionState = "discovering-wallets"
	StateConnected           ConnectionState = "connected"
)

// Busy reports whether the state belongs to an onboarding run in progress
func (s ConnectionState) Busy() bool {
	return s != StateDisconnected && s != StateConnected
}

// Mode selects between first-time and returning users
type Mode string

const (
	// ModeCreate creates the user before requesting credentials
	ModeCreate Mode = "create"
	// ModeLogin skips user creation
	ModeLogin Mode = "login"
)

// ParseMode maps a raw mode, defaulting to ModeCreate
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "", ModeCreate:
		return ModeCreate, nil
	case ModeLogin:
		return ModeLogin, nil
	default:
		return "", ErrInvalidMode
	}
}

// Outcome classifies a provisioning call to the custody service
type Outcome int

const (
	// OutcomeFailed is returned together with a non-nil error
	OutcomeFailed Outcome = iota
	// OutcomeCreated means the call did the work
	OutcomeCreated
	// OutcomeAlreadyExists means the requested state already holds
	OutcomeAlreadyExists
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeAlreadyExists:
		return "already-exists"
	default:
		return "failed"
	}
}

// Initialization is the result of account initialization.
// ChallengeID is only set when Outcome is OutcomeCreated.
type Initialization struct {
	Outcome     Outcome
	ChallengeID string
}

// Status is the user-facing view of the onboarding machine
type Status struct {
	State            ConnectionState  `json:"state"`
	Mode             Mode             `json:"mode,omitempty"`
	Identity         Identity         `json:"user_id,omitempty"`
	Address          string           `json:"address,omitempty"`
	WalletID         string           `json:"wallet_id,omitempty"`
	Blockchain       string           `json:"blockchain,omitempty"`
	Balance          *decimal.Decimal `json:"usdc_balance,omitempty"`
	CredentialsUntil *time.Time       `json:"credentials_expire_at,omitempty"`
	ChallengeID      string           `json:"challenge_id,omitempty"`
	Message          string           `json:"message,omitempty"`
	Error            bool             `json:"error"`
}

// Connected reports whether the status describes a usable wallet
func (s Status) Connected() bool {
	return s.State == StateConnected && s.Address != ""
}

// ConnectorEventType names the lifecycle events a connector emits
type ConnectorEventType string

const (
	EventConnect    ConnectorEventType = "connect"
	EventChange     ConnectorEventType = "change"
	EventDisconnect ConnectorEventType = "disconnect"
)

// ConnectorEvent is emitted by a connector towards the framework
type ConnectorEvent struct {
	Type        ConnectorEventType `json:"type"`
	ConnectorID string             `json:"connector_id"`
	Accounts    []common.Address   `json:"accounts,omitempty"`
	ChainID     uint64             `json:"chain_id,omitempty"`
}

// StateChange is published whenever the machine's connected/address pair moves
type StateChange struct {
	State    ConnectionState `json:"state"`
	Identity Identity        `json:"user_id,omitempty"`
	Address  string          `json:"address,omitempty"`
}
