package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// MinIdentityLength is the shortest identity accepted for onboarding
const MinIdentityLength = 5

// Identity is the user-chosen identifier of a wallet owner
type Identity string

// ParseIdentity trims and validates a raw identity
func ParseIdentity(raw string) (Identity, error) {
	id := strings.TrimSpace(raw)
	if len(id) < MinIdentityLength {
		return "", ErrInvalidIdentity
	}
	return Identity(id), nil
}

func (i Identity) String() string {
	return string(i)
}

// Credentials is the short-lived pair issued by the custody service
type Credentials struct {
	SessionToken  string `json:"userToken"`
	EncryptionKey string `json:"encryptionKey"`
}

// Valid reports whether both halves of the pair are present
func (c Credentials) Valid() bool {
	return c.SessionToken != "" && c.EncryptionKey != ""
}

// WalletRecord is a wallet as returned by the custody service.
// Fields the service adds beyond the known ones are kept in Extra and
// written back unchanged.
type WalletRecord struct {
	ID          string
	Address     string
	Blockchain  string
	State       string
	WalletSetID string
	CustodyType string
	AccountType string
	UserID      string
	CreateDate  time.Time
	UpdateDate  time.Time
	Extra       map[string]json.RawMessage
}

type walletRecordJSON struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	Blockchain  string    `json:"blockchain"`
	State       string    `json:"state,omitempty"`
	WalletSetID string    `json:"walletSetId,omitempty"`
	CustodyType string    `json:"custodyType,omitempty"`
	AccountType string    `json:"accountType,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	CreateDate  time.Time `json:"createDate,omitzero"`
	UpdateDate  time.Time `json:"updateDate,omitzero"`
}

var walletRecordFields = []string{
	"id", "address", "blockchain", "state", "walletSetId",
	"custodyType", "accountType", "userId", "createDate", "updateDate",
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra
func (w *WalletRecord) UnmarshalJSON(data []byte) error {
	var known walletRecordJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, name := range walletRecordFields {
		delete(all, name)
	}
	if len(all) == 0 {
		all = nil
	}

	*w = WalletRecord{
		ID:          known.ID,
		Address:     known.Address,
		Blockchain:  known.Blockchain,
		State:       known.State,
		WalletSetID: known.WalletSetID,
		CustodyType: known.CustodyType,
		AccountType: known.AccountType,
		UserID:      known.UserID,
		CreateDate:  known.CreateDate,
		UpdateDate:  known.UpdateDate,
		Extra:       all,
	}
	return nil
}

// MarshalJSON writes the known fields merged with Extra
func (w WalletRecord) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(walletRecordJSON{
		ID:          w.ID,
		Address:     w.Address,
		Blockchain:  w.Blockchain,
		State:       w.State,
		WalletSetID: w.WalletSetID,
		CustodyType: w.CustodyType,
		AccountType: w.AccountType,
		UserID:      w.UserID,
		CreateDate:  w.CreateDate,
		UpdateDate:  w.UpdateDate,
	})
	if err != nil || len(w.Extra) == 0 {
		return known, err
	}

	merged := make(map[string]json.RawMessage, len(w.Extra)+len(walletRecordFields))
	for k, v := range w.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Account returns the wallet address as an EVM account.
// ok is false when the address is not a hex account (non-EVM chains).
func (w WalletRecord) Account() (common.Address, bool) {
	if !common.IsHexAddress(w.Address) {
		return common.Address{}, false
	}
	return common.HexToAddress(w.Address), true
}

// Snapshot is the durable session tuple
type Snapshot struct {
	Identity    Identity
	Credentials Credentials
	Wallets     []WalletRecord
}

// Complete reports whether every part of the snapshot is present.
// Only a complete snapshot may back a connected state.
func (s Snapshot) Complete() bool {
	return s.Identity != "" && s.Credentials.Valid() && len(s.Wallets) > 0
}

// Primary returns the first wallet of the snapshot
func (s Snapshot) Primary() (WalletRecord, bool) {
	if len(s.Wallets) == 0 {
		return WalletRecord{}, false
	}
	return s.Wallets[0], true
}

// Token describes a token held by a wallet
type Token struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Blockchain string `json:"blockchain"`
	Decimals   int    `json:"decimals"`
	IsNative   bool   `json:"isNative"`
}

// TokenBalance is one entry of a wallet balance listing
type TokenBalance struct {
	Token      Token           `json:"token"`
	Amount     decimal.Decimal `json:"amount"`
	UpdateDate time.Time       `json:"updateDate"`
}

// StablecoinSymbol is the prefix used to pick the displayed balance
const StablecoinSymbol = "USDC"

// StablecoinBalance picks the first balance whose symbol starts with USDC or
// whose name contains USDC. It returns zero when nothing matches.
func StablecoinBalance(balances []TokenBalance) decimal.Decimal {
	for _, b := range balances {
		if strings.HasPrefix(b.Token.Symbol, StablecoinSymbol) || strings.Contains(b.Token.Name, StablecoinSymbol) {
			return b.Amount
		}
	}
	return decimal.Zero
}
