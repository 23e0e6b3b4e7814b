package custody

import (
	"fmt"
	"net/http"

	"github.com/layer-3/pinwallet/core"
)

// Service error codes meaning the requested state already holds
const (
	CodeUserAlreadyExists      = 155101
	CodeUserAlreadyInitialized = 155106
)

// HeaderUserToken carries the end-user session token
const HeaderUserToken = "X-User-Token"

// APIError is a non-2xx response of the custody service
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("custody: status %d, code %d", e.Status, e.Code)
	}
	return fmt.Sprintf("custody: %s (status %d, code %d)", e.Message, e.Status, e.Code)
}

// HTTPStatus returns the response status code
func (e *APIError) HTTPStatus() int {
	return e.Status
}

// RemoteMessage returns the message reported by the service
func (e *APIError) RemoteMessage() string {
	return e.Message
}

// Unwrap maps rejected credentials to core.ErrUnauthorized
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return core.ErrUnauthorized
	}
	return nil
}

// envelope wraps every successful response body
type envelope[T any] struct {
	Data T `json:"data"`
}

type createUserRequest struct {
	UserID string `json:"userId"`
}

// User is the user record returned on creation
type User struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	PinStatus  string `json:"pinStatus"`
	CreateDate string `json:"createDate"`
}

type issueTokenRequest struct {
	UserID string `json:"userId"`
}

type initializeRequest struct {
	IdempotencyKey string   `json:"idempotencyKey"`
	AccountType    string   `json:"accountType,omitempty"`
	Blockchains    []string `json:"blockchains,omitempty"`
}

type initializeResponse struct {
	ChallengeID string `json:"challengeId"`
}

type walletsResponse struct {
	Wallets []core.WalletRecord `json:"wallets"`
}

type balancesResponse struct {
	TokenBalances []core.TokenBalance `json:"tokenBalances"`
}
