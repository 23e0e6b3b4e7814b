// Package signer bridges the in-browser PIN enclave to the onboarding machine.
// The machine parks a challenge with Execute; the UI fetches it with Pending,
// runs the PIN flow and reports back through Complete.
package signer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/ports"
	"github.com/layer-3/pinwallet/session"
	"go.uber.org/zap"
)

// Challenge is a parked challenge together with what the enclave needs to run it
type Challenge struct {
	AppID         string `json:"app_id"`
	ChallengeID   string `json:"challenge_id"`
	SessionToken  string `json:"user_token"`
	EncryptionKey string `json:"encryption_key"`
}

type pending struct {
	id       string
	callback func(error)
	once     sync.Once
}

func (p *pending) fire(err error) {
	p.once.Do(func() { p.callback(err) })
}

// Bridge implements ports.SigningProvider
type Bridge struct {
	appID  string
	kv     ports.Store
	logger *zap.Logger

	initOnce sync.Once
	ready    bool

	mu      sync.Mutex
	creds   core.Credentials
	current *pending
}

// NewBridge creates a bridge for appID. Device ids are cached in kv.
func NewBridge(appID string, kv ports.Store, logger *zap.Logger) *Bridge {
	return &Bridge{
		appID:  appID,
		kv:     kv,
		logger: logger,
	}
}

var _ ports.SigningProvider = (*Bridge)(nil)

func (b *Bridge) init() {
	b.initOnce.Do(func() {
		b.ready = b.appID != ""
		if !b.ready {
			b.logger.Warn("signing provider disabled: app id is not configured")
		}
	})
}

// IsReady reports whether challenges can be executed
func (b *Bridge) IsReady() bool {
	b.init()
	return b.ready
}

// SetAuthentication arms the bridge with the session credentials
func (b *Bridge) SetAuthentication(creds core.Credentials) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creds = creds
}

// Authentication returns the armed credentials
func (b *Bridge) Authentication() core.Credentials {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.creds
}

// Execute parks the challenge until Complete is called. A challenge already
// parked is failed first.
func (b *Bridge) Execute(challengeID string, callback func(err error)) {
	if !b.IsReady() {
		callback(core.ErrSignerNotReady)
		return
	}

	p := &pending{id: challengeID, callback: callback}

	b.mu.Lock()
	previous := b.current
	b.current = p
	b.mu.Unlock()

	if previous != nil {
		b.logger.Warn("superseding parked challenge", zap.String("challenge_id", previous.id))
		previous.fire(fmt.Errorf("%w: superseded by %s", core.ErrSigningFailed, challengeID))
	}
	b.logger.Info("challenge parked for signing", zap.String("challenge_id", challengeID))
}

// Pending returns the parked challenge, if any
func (b *Bridge) Pending() (Challenge, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return Challenge{}, false
	}
	return Challenge{
		AppID:         b.appID,
		ChallengeID:   b.current.id,
		SessionToken:  b.creds.SessionToken,
		EncryptionKey: b.creds.EncryptionKey,
	}, true
}

// Complete reports the enclave result for the parked challenge.
// A nil execErr means the challenge was signed.
func (b *Bridge) Complete(challengeID string, execErr error) error {
	b.mu.Lock()
	p := b.current
	if p == nil || p.id != challengeID {
		b.mu.Unlock()
		return core.ErrUnknownChallenge
	}
	b.current = nil
	b.mu.Unlock()

	if execErr != nil && !errors.Is(execErr, core.ErrSigningFailed) {
		execErr = fmt.Errorf("%w: %v", core.ErrSigningFailed, execErr)
	}
	p.fire(execErr)
	return nil
}

// Cancel fails the parked challenge, if any
func (b *Bridge) Cancel() {
	b.mu.Lock()
	p := b.current
	b.current = nil
	b.mu.Unlock()

	if p != nil {
		p.fire(fmt.Errorf("%w: cancelled", core.ErrSigningFailed))
	}
}

// DeviceID returns the device id, generating and caching it on first use
func (b *Bridge) DeviceID(ctx context.Context) (string, error) {
	id, err := b.kv.Get(ctx, session.KeyDeviceID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return "", fmt.Errorf("load device id: %w", err)
	}

	id = uuid.New().String()
	if err := b.kv.Set(ctx, session.KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("save device id: %w", err)
	}
	return id, nil
}
