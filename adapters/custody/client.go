// Package custody is the HTTP client of the remote wallet-custody service.
package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/ports"
	"go.uber.org/zap"
)

// DefaultIssueTokenTimeout bounds credential issuance
const DefaultIssueTokenTimeout = 30 * time.Second

// Config configures the client
type Config struct {
	BaseURL           string
	APIKey            string
	IssueTokenTimeout time.Duration
	RequestTimeout    time.Duration
}

// Client implements ports.Custody over HTTPS
type Client struct {
	baseURL           string
	apiKey            string
	httpClient        *http.Client
	issueTokenTimeout time.Duration
	requestTimeout    time.Duration
	newKey            func() string
	logger            *zap.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithIdempotencyKeys replaces the idempotency key generator
func WithIdempotencyKeys(gen func() string) Option {
	return func(c *Client) { c.newKey = gen }
}

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a custody client
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:            cfg.APIKey,
		httpClient:        &http.Client{},
		issueTokenTimeout: cfg.IssueTokenTimeout,
		requestTimeout:    cfg.RequestTimeout,
		newKey:            func() string { return uuid.New().String() },
		logger:            zap.NewNop(),
	}
	if c.issueTokenTimeout <= 0 {
		c.issueTokenTimeout = DefaultIssueTokenTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.Custody = (*Client)(nil)

// CreateUser registers the identity with the service
func (c *Client) CreateUser(ctx context.Context, identity core.Identity) (core.Outcome, error) {
	var user User
	err := c.do(ctx, c.requestTimeout, http.MethodPost, "/v1/w3s/users", "",
		createUserRequest{UserID: identity.String()}, &user)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isAlreadyExists(apiErr) {
			c.logger.Debug("user already exists", zap.String("user_id", identity.String()))
			return core.OutcomeAlreadyExists, nil
		}
		return core.OutcomeFailed, fmt.Errorf("create user: %w", err)
	}
	return core.OutcomeCreated, nil
}

// IssueToken requests a credential pair, bounded by the issue token timeout
func (c *Client) IssueToken(ctx context.Context, identity core.Identity) (core.Credentials, error) {
	var creds core.Credentials
	err := c.do(ctx, c.issueTokenTimeout, http.MethodPost, "/v1/w3s/users/token", "",
		issueTokenRequest{UserID: identity.String()}, &creds)
	if err != nil {
		return core.Credentials{}, fmt.Errorf("issue token: %w", err)
	}
	if !creds.Valid() {
		return core.Credentials{}, fmt.Errorf("issue token: incomplete credentials in response")
	}
	return creds, nil
}

// InitializeAccount starts wallet creation with a fresh idempotency key
func (c *Client) InitializeAccount(ctx context.Context, creds core.Credentials, accountType string, blockchains []string) (core.Initialization, error) {
	req := initializeRequest{
		IdempotencyKey: c.newKey(),
		AccountType:    accountType,
		Blockchains:    blockchains,
	}

	var resp initializeResponse
	err := c.do(ctx, c.requestTimeout, http.MethodPost, "/v1/w3s/user/initialize", creds.SessionToken, req, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == CodeUserAlreadyInitialized {
			return core.Initialization{Outcome: core.OutcomeAlreadyExists}, nil
		}
		return core.Initialization{Outcome: core.OutcomeFailed}, fmt.Errorf("initialize account: %w", err)
	}
	if resp.ChallengeID == "" {
		return core.Initialization{Outcome: core.OutcomeFailed}, fmt.Errorf("initialize account: missing challenge id")
	}
	return core.Initialization{Outcome: core.OutcomeCreated, ChallengeID: resp.ChallengeID}, nil
}

// ListWallets returns the wallets of the credential's user
func (c *Client) ListWallets(ctx context.Context, creds core.Credentials) ([]core.WalletRecord, error) {
	var resp walletsResponse
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, "/v1/w3s/wallets", creds.SessionToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return resp.Wallets, nil
}

// TokenBalances returns the balances of a wallet
func (c *Client) TokenBalances(ctx context.Context, creds core.Credentials, walletID string) ([]core.TokenBalance, error) {
	path := "/v1/w3s/wallets/" + url.PathEscape(walletID) + "/balances"

	var resp balancesResponse
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, path, creds.SessionToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("token balances: %w", err)
	}
	return resp.TokenBalances, nil
}

func isAlreadyExists(err *APIError) bool {
	return err.Status == http.StatusConflict ||
		err.Code == CodeUserAlreadyExists ||
		err.Code == CodeUserAlreadyInitialized
}

// do sends one request and decodes the data envelope into out
func (c *Client) do(ctx context.Context, timeout time.Duration, method, path, userToken string, body, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if userToken != "" {
		req.Header.Set(HeaderUserToken, userToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", method, path, core.ErrTimeout)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("custody request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", method, path, core.ErrTimeout)
		}
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, apiErr)
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	env := envelope[json.RawMessage]{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("invalid response data: %w", err)
	}
	return nil
}
