package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/pinwallet/adapters/signer"
	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/ports"
	"github.com/layer-3/pinwallet/reconcile"
)

// Wallet is the onboarding machine as driven over HTTP
type Wallet interface {
	Start(ctx context.Context, identity string, mode core.Mode) error
	StartRetry(ctx context.Context) error
	Status() core.Status
	Refresh(ctx context.Context) (core.Status, error)
	Disconnect(ctx context.Context) error
}

// Challenges is the signing bridge the UI completes challenges through
type Challenges interface {
	Pending() (signer.Challenge, bool)
	Complete(challengeID string, execErr error) error
	DeviceID(ctx context.Context) (string, error)
}

// Accounts answers the current-account query
type Accounts interface {
	Get() reconcile.AccountView
}

// WalletHandlers contains HTTP handlers for wallet and connector endpoints
type WalletHandlers struct {
	wallet     Wallet
	challenges Challenges
	accounts   Accounts
	connector  ports.Connector
}

// NewWalletHandlers creates new wallet handlers
func NewWalletHandlers(wallet Wallet, challenges Challenges, accounts Accounts, connector ports.Connector) *WalletHandlers {
	return &WalletHandlers{
		wallet:     wallet,
		challenges: challenges,
		accounts:   accounts,
		connector:  connector,
	}
}

// Connect starts onboarding; progress is read back through Status
func (h *WalletHandlers) Connect(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
		Mode   string `json:"mode"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	mode, err := core.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.wallet.Start(c.Request.Context(), req.UserID, mode); err != nil {
		h.startFailed(c, err)
		return
	}

	c.JSON(http.StatusAccepted, h.wallet.Status())
}

// Retry re-runs onboarding with the retained credentials
func (h *WalletHandlers) Retry(c *gin.Context) {
	if err := h.wallet.StartRetry(c.Request.Context()); err != nil {
		h.startFailed(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.wallet.Status())
}

func (h *WalletHandlers) startFailed(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrInvalidIdentity), errors.Is(err, core.ErrInvalidMode):
		statusCode = http.StatusBadRequest
	case errors.Is(err, core.ErrOnboardingInFlight),
		errors.Is(err, core.ErrAlreadyConnected),
		errors.Is(err, core.ErrNothingToRetry):
		statusCode = http.StatusConflict
	case errors.Is(err, core.ErrSignerNotReady):
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{"error": err.Error(), "status": h.wallet.Status()})
}

// Status returns the onboarding state
func (h *WalletHandlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.wallet.Status())
}

// Challenge returns the challenge waiting for the PIN flow
func (h *WalletHandlers) Challenge(c *gin.Context) {
	challenge, ok := h.challenges.Pending()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No pending challenge"})
		return
	}
	c.JSON(http.StatusOK, challenge)
}

// CompleteChallenge reports the PIN flow result
func (h *WalletHandlers) CompleteChallenge(c *gin.Context) {
	var req struct {
		Error string `json:"error"`
	}

	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	var execErr error
	if req.Error != "" {
		execErr = errors.New(req.Error)
	}

	if err := h.challenges.Complete(c.Param("id"), execErr); err != nil {
		if errors.Is(err, core.ErrUnknownChallenge) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete challenge"})
		return
	}

	c.JSON(http.StatusOK, h.wallet.Status())
}

// Refresh re-fetches wallets and the balance
func (h *WalletHandlers) Refresh(c *gin.Context) {
	status, err := h.wallet.Refresh(c.Request.Context())
	if err != nil {
		statusCode := http.StatusBadGateway
		switch {
		case errors.Is(err, core.ErrNotConnected):
			statusCode = http.StatusConflict
		case errors.Is(err, core.ErrUnauthorized):
			statusCode = http.StatusUnauthorized
		case errors.Is(err, core.ErrTimeout):
			statusCode = http.StatusGatewayTimeout
		}
		c.JSON(statusCode, gin.H{"error": err.Error(), "status": status})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Disconnect ends the session
func (h *WalletHandlers) Disconnect(c *gin.Context) {
	if err := h.wallet.Disconnect(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to disconnect"})
		return
	}
	c.JSON(http.StatusOK, h.wallet.Status())
}

// Account answers the current-account query
func (h *WalletHandlers) Account(c *gin.Context) {
	c.JSON(http.StatusOK, h.accounts.Get())
}

// Device returns the device id used by the PIN enclave
func (h *WalletHandlers) Device(c *gin.Context) {
	id, err := h.challenges.DeviceID(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load device id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"device_id": id})
}

// ConnectorAccounts returns the connector's accounts
func (h *WalletHandlers) ConnectorAccounts(c *gin.Context) {
	accounts, err := h.connector.Accounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read accounts"})
		return
	}
	if accounts == nil {
		accounts = []common.Address{}
	}
	c.JSON(http.StatusOK, gin.H{"connector_id": h.connector.ID(), "accounts": accounts})
}

// ConnectorChain returns the connector's chain id
func (h *WalletHandlers) ConnectorChain(c *gin.Context) {
	chainID, err := h.connector.ChainID(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read chain"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chain_id": chainID})
}

// ConnectorAuthorized reports whether the connector can reconnect silently
func (h *WalletHandlers) ConnectorAuthorized(c *gin.Context) {
	authorized, err := h.connector.IsAuthorized(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read authorization"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorized": authorized})
}
