package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/internal/metrics"
	"github.com/layer-3/pinwallet/ports"
	"github.com/layer-3/pinwallet/session"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var errSuperseded = fmt.Errorf("onboarding run superseded: %w", context.Canceled)

// Config holds the onboarding parameters
type Config struct {
	AccountType string
	Blockchains []string
	Settle      SettlePolicy
}

// Option configures an Onboarding
type Option func(*Onboarding)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Onboarding) { o.logger = logger }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Onboarding) { o.metrics = m }
}

// WithEvents sets the publisher that receives state changes
func WithEvents(events ports.EventPublisher) Option {
	return func(o *Onboarding) { o.events = events }
}

// WithInspector sets the session token inspector used for expiry reporting
func WithInspector(inspector ports.CredentialInspector) Option {
	return func(o *Onboarding) { o.inspector = inspector }
}

// run is one onboarding attempt
type run struct {
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
	identity   core.Identity
	mode       core.Mode
	done       chan struct{}
}

// Onboarding is the wallet onboarding state machine. It drives a user from an
// identity to a connected wallet and owns the persisted session.
type Onboarding struct {
	custody   ports.Custody
	signer    ports.SigningProvider
	sessions  *session.Store
	cfg       Config
	inspector ports.CredentialInspector
	events    ports.EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	// persist serializes session writes with Disconnect
	persist sync.Mutex

	mu          sync.Mutex
	state       core.ConnectionState
	mode        core.Mode
	identity    core.Identity
	creds       core.Credentials
	retryable   bool
	wallets     []core.WalletRecord
	balance     *decimal.Decimal
	challengeID string
	message     string
	failed      bool
	generation  uint64
	current     *run
}

// NewOnboarding creates a disconnected machine
func NewOnboarding(custody ports.Custody, signer ports.SigningProvider, sessions *session.Store, cfg Config, opts ...Option) *Onboarding {
	o := &Onboarding{
		custody:  custody,
		signer:   signer,
		sessions: sessions,
		cfg:      cfg,
		logger:   zap.NewNop(),
		state:    core.StateDisconnected,
	}
	if o.cfg.Settle == (SettlePolicy{}) {
		o.cfg.Settle = DefaultSettlePolicy()
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Connect runs onboarding for identity and blocks until it ends
func (o *Onboarding) Connect(ctx context.Context, identity string, mode core.Mode) (core.Status, error) {
	r, err := o.prepare(ctx, identity, mode, false)
	if err != nil {
		return o.Status(), err
	}
	err = o.execute(r, o.provision)
	return o.Status(), err
}

// Start takes the in-flight guard and runs onboarding in the background.
// The run outlives ctx; Disconnect cancels it.
func (o *Onboarding) Start(ctx context.Context, identity string, mode core.Mode) error {
	r, err := o.prepare(context.WithoutCancel(ctx), identity, mode, false)
	if err != nil {
		return err
	}
	go o.execute(r, o.provision)
	return nil
}

// Retry re-runs onboarding from account initialization with the credentials
// retained by the previous run
func (o *Onboarding) Retry(ctx context.Context) (core.Status, error) {
	r, err := o.prepare(ctx, "", "", true)
	if err != nil {
		return o.Status(), err
	}
	err = o.execute(r, o.resume)
	return o.Status(), err
}

// StartRetry is Retry in the background
func (o *Onboarding) StartRetry(ctx context.Context) error {
	r, err := o.prepare(context.WithoutCancel(ctx), "", "", true)
	if err != nil {
		return err
	}
	go o.execute(r, o.resume)
	return nil
}

// Wait blocks until the run in flight, if any, has ended
func (o *Onboarding) Wait(ctx context.Context) error {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restore resumes a persisted session without contacting the custody service
func (o *Onboarding) Restore(ctx context.Context) core.Status {
	o.mu.Lock()
	busy := o.state != core.StateDisconnected
	o.mu.Unlock()
	if busy {
		return o.Status()
	}

	snap, ok, err := o.sessions.Load(ctx)
	if err != nil {
		o.logger.Warn("failed to load persisted session", zap.Error(err))
		return o.Status()
	}
	if !ok {
		return o.Status()
	}

	o.mu.Lock()
	if o.state != core.StateDisconnected {
		o.mu.Unlock()
		return o.Status()
	}
	o.generation++
	generation := o.generation
	o.state = core.StateConnected
	o.mode = core.ModeLogin
	o.identity = snap.Identity
	o.creds = snap.Credentials
	o.retryable = false
	o.wallets = snap.Wallets
	o.balance = nil
	o.message = ""
	o.failed = false
	o.mu.Unlock()

	o.signer.SetAuthentication(snap.Credentials)
	if o.expired(snap.Credentials.SessionToken) {
		o.logger.Warn("restored session token has expired; reconnect if requests fail",
			zap.String("user_id", snap.Identity.String()))
	}
	o.logger.Info("session restored", zap.String("user_id", snap.Identity.String()))
	o.metrics.SetConnected(true)
	o.publish(ctx)

	if err := o.refreshBalance(ctx, generation); err != nil {
		o.logger.Warn("balance refresh failed", zap.Error(err))
	}
	return o.Status()
}

// Refresh re-fetches the wallet list and the balance of a connected session.
// Rejected credentials end the session.
func (o *Onboarding) Refresh(ctx context.Context) (core.Status, error) {
	o.mu.Lock()
	if o.state != core.StateConnected {
		o.mu.Unlock()
		return o.Status(), core.ErrNotConnected
	}
	generation := o.generation
	creds := o.creds
	o.mu.Unlock()

	wallets, err := o.custody.ListWallets(ctx, creds)
	if err != nil {
		return o.Status(), o.refreshFailed(ctx, generation, err)
	}
	if len(wallets) == 0 {
		o.logger.Warn("wallet listing came back empty; keeping the stored list")
	} else if err := o.replaceWallets(ctx, generation, wallets); err != nil {
		return o.Status(), err
	}

	if err := o.refreshBalance(ctx, generation); err != nil {
		return o.Status(), o.refreshFailed(ctx, generation, err)
	}
	return o.Status(), nil
}

// Disconnect cancels any run in flight, clears the persisted session and the
// in-memory secrets, and returns the machine to disconnected
func (o *Onboarding) Disconnect(ctx context.Context) error {
	o.reset("", false)
	if canceler, ok := o.signer.(interface{ Cancel() }); ok {
		canceler.Cancel()
	}

	o.persist.Lock()
	err := o.sessions.Clear(ctx)
	o.persist.Unlock()

	o.logger.Info("wallet disconnected")
	o.publish(ctx)
	return err
}

// Status returns the observable state
func (o *Onboarding) Status() core.Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := core.Status{
		State:       o.state,
		Mode:        o.mode,
		Identity:    o.identity,
		ChallengeID: o.challengeID,
		Message:     o.message,
		Error:       o.failed,
	}
	if o.state == core.StateConnected && len(o.wallets) > 0 {
		primary := o.wallets[0]
		status.Address = primary.Address
		status.WalletID = primary.ID
		status.Blockchain = primary.Blockchain
	}
	if o.balance != nil {
		balance := *o.balance
		status.Balance = &balance
	}
	if o.inspector != nil && o.creds.SessionToken != "" {
		if expiresAt, ok := o.inspector.ExpiresAt(o.creds.SessionToken); ok {
			status.CredentialsUntil = &expiresAt
		}
	}
	return status
}

// prepare validates the request and takes the in-flight guard
func (o *Onboarding) prepare(ctx context.Context, rawIdentity string, mode core.Mode, retry bool) (*run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Busy() {
		return nil, core.ErrOnboardingInFlight
	}
	if o.state == core.StateConnected {
		return nil, core.ErrAlreadyConnected
	}

	var identity core.Identity
	if retry {
		if !o.retryable || !o.creds.Valid() || o.expired(o.creds.SessionToken) {
			return nil, core.ErrNothingToRetry
		}
		identity, mode = o.identity, o.mode
	} else {
		var err error
		if identity, err = core.ParseIdentity(rawIdentity); err != nil {
			o.message, o.failed = MsgInvalidIdentity, true
			return nil, err
		}
		if mode == "" {
			mode = core.ModeCreate
		}
	}

	if !o.signer.IsReady() {
		o.message, o.failed = MsgSignerNotReady, true
		return nil, core.ErrSignerNotReady
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.generation++
	r := &run{
		ctx:        runCtx,
		cancel:     cancel,
		generation: o.generation,
		identity:   identity,
		mode:       mode,
		done:       make(chan struct{}),
	}
	o.current = r

	o.mode = mode
	o.identity = identity
	o.message, o.failed = "", false
	o.challengeID = ""
	o.wallets = nil
	o.balance = nil
	if retry {
		o.state = core.StateInitializingAccount
	} else {
		o.creds = core.Credentials{}
		o.retryable = false
		o.state = core.StateIssuingCredentials
		if mode == core.ModeCreate {
			o.state = core.StateCreatingIdentity
		}
	}
	return r, nil
}

// execute drives r through steps and records the terminal state
func (o *Onboarding) execute(r *run, steps func(*run) error) error {
	defer close(r.done)
	defer r.cancel()

	o.publish(r.ctx)
	o.logger.Info("onboarding started",
		zap.String("user_id", r.identity.String()),
		zap.String("mode", string(r.mode)))

	err := steps(r)
	o.finish(r, err)
	return err
}

// provision is the full sequence starting from the identity
func (o *Onboarding) provision(r *run) error {
	if r.mode == core.ModeCreate {
		if err := o.enter(r, core.StateCreatingIdentity); err != nil {
			return err
		}
		start := time.Now()
		outcome, err := o.custody.CreateUser(r.ctx, r.identity)
		o.metrics.ObserveStep("create_user", start, err)
		if err != nil {
			return fail(err, MsgCreateUserFailed)
		}
		o.logger.Debug("user ready", zap.Stringer("outcome", outcome))
	}

	if err := o.enter(r, core.StateIssuingCredentials); err != nil {
		return err
	}
	start := time.Now()
	creds, err := o.custody.IssueToken(r.ctx, r.identity)
	o.metrics.ObserveStep("issue_token", start, err)
	if err != nil {
		return tokenFailure(err, r.mode)
	}
	if err := o.hold(r, creds); err != nil {
		return err
	}
	return o.initialize(r, creds)
}

// resume continues from account initialization with retained credentials
func (o *Onboarding) resume(r *run) error {
	o.mu.Lock()
	creds := o.creds
	o.mu.Unlock()
	return o.initialize(r, creds)
}

func (o *Onboarding) initialize(r *run, creds core.Credentials) error {
	if err := o.enter(r, core.StateInitializingAccount); err != nil {
		return err
	}
	start := time.Now()
	result, err := o.custody.InitializeAccount(r.ctx, creds, o.cfg.AccountType, o.cfg.Blockchains)
	o.metrics.ObserveStep("initialize_account", start, err)
	if err != nil {
		return fail(err, MsgInitializeFailed)
	}

	if result.Outcome == core.OutcomeAlreadyExists {
		o.logger.Info("account already initialized, loading existing wallets")
		return o.discover(r, creds, SettlePolicy{MaxAttempts: 1})
	}

	if err := o.sign(r, creds, result.ChallengeID); err != nil {
		return err
	}
	return o.discover(r, creds, o.cfg.Settle)
}

// sign hands the challenge to the signing provider and waits for the PIN flow
func (o *Onboarding) sign(r *run, creds core.Credentials, challengeID string) error {
	o.mu.Lock()
	if r.generation != o.generation {
		o.mu.Unlock()
		return errSuperseded
	}
	o.state = core.StateAwaitingSignature
	o.challengeID = challengeID
	o.mu.Unlock()
	o.publish(r.ctx)

	start := time.Now()
	result := make(chan error, 1)
	o.signer.SetAuthentication(creds)
	o.signer.Execute(challengeID, func(err error) {
		select {
		case result <- err:
		default:
		}
	})

	var err error
	select {
	case <-r.ctx.Done():
		err = r.ctx.Err()
	case err = <-result:
	}
	o.metrics.ObserveStep("execute_challenge", start, err)

	o.mu.Lock()
	if r.generation == o.generation {
		o.challengeID = ""
	}
	o.mu.Unlock()

	switch {
	case err == nil:
		return nil
	case r.ctx.Err() != nil:
		return err
	case errors.Is(err, core.ErrSignerNotReady):
		return &stepError{message: MsgSignerNotReady, err: err, retain: true}
	default:
		return &stepError{message: MsgCreateWalletFailed, err: err, retain: true}
	}
}

// discover lists wallets under policy and commits the session on success
func (o *Onboarding) discover(r *run, creds core.Credentials, policy SettlePolicy) error {
	if err := o.enter(r, core.StateDiscoveringWallets); err != nil {
		return err
	}

	start := time.Now()
	wallets, err := policy.poll(r.ctx, func(ctx context.Context) ([]core.WalletRecord, error) {
		return o.custody.ListWallets(ctx, creds)
	})
	o.metrics.ObserveStep("list_wallets", start, err)
	if err != nil {
		failure := fail(err, MsgConnectionFailed)
		failure.retain = true
		return failure
	}
	if len(wallets) == 0 {
		return &stepError{message: MsgWalletPending, err: core.ErrWalletPending, retain: true}
	}

	return o.commit(r, core.Snapshot{
		Identity:    r.identity,
		Credentials: creds,
		Wallets:     wallets,
	})
}

// commit persists the snapshot and enters connected, unless r was superseded
func (o *Onboarding) commit(r *run, snap core.Snapshot) error {
	o.persist.Lock()
	o.mu.Lock()
	current := r.generation == o.generation && r.ctx.Err() == nil
	o.mu.Unlock()
	if !current {
		o.persist.Unlock()
		return errSuperseded
	}
	err := o.sessions.Save(r.ctx, snap)
	o.persist.Unlock()
	if err != nil {
		failure := fail(err, MsgConnectionFailed)
		failure.retain = true
		return failure
	}

	o.mu.Lock()
	if r.generation != o.generation {
		o.mu.Unlock()
		return errSuperseded
	}
	o.state = core.StateConnected
	o.wallets = snap.Wallets
	o.retryable = false
	o.mu.Unlock()

	o.signer.SetAuthentication(snap.Credentials)
	primary, _ := snap.Primary()
	o.logger.Info("wallet connected",
		zap.String("user_id", snap.Identity.String()),
		zap.String("address", primary.Address),
		zap.String("blockchain", primary.Blockchain))
	o.metrics.SetConnected(true)
	o.publish(r.ctx)

	if err := o.refreshBalance(r.ctx, r.generation); err != nil {
		o.logger.Warn("balance refresh failed", zap.Error(err))
	}
	return nil
}

// finish records the terminal state of r
func (o *Onboarding) finish(r *run, err error) {
	o.mu.Lock()
	if o.current == r {
		o.current = nil
	}
	if r.generation != o.generation {
		o.mu.Unlock()
		o.metrics.OnboardingFinished("cancelled")
		return
	}
	if err == nil {
		o.mu.Unlock()
		o.metrics.OnboardingFinished("connected")
		return
	}
	o.mu.Unlock()

	var step *stepError
	if !errors.As(err, &step) {
		step = fail(err, MsgConnectionFailed)
	}
	outcome := "failed"
	if errors.Is(err, core.ErrWalletPending) {
		outcome = "pending"
	}

	if o.resetIf(r.generation, step.message, step.retain) {
		o.logger.Warn("onboarding failed",
			zap.String("user_id", r.identity.String()),
			zap.String("message", step.message),
			zap.Error(err))
		o.metrics.OnboardingFinished(outcome)
		o.publish(r.ctx)
	}
}

// enter moves r to state unless r was superseded or cancelled
func (o *Onboarding) enter(r *run, state core.ConnectionState) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	if r.generation != o.generation {
		o.mu.Unlock()
		return errSuperseded
	}
	changed := o.state != state
	o.state = state
	o.mu.Unlock()

	if changed {
		o.publish(r.ctx)
	}
	return nil
}

// hold keeps creds in memory for the rest of r
func (o *Onboarding) hold(r *run, creds core.Credentials) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r.generation != o.generation {
		return errSuperseded
	}
	o.creds = creds
	return nil
}

// reset returns to disconnected and starts a new generation
func (o *Onboarding) reset(message string, failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked(message, failed)
}

func (o *Onboarding) resetLocked(message string, failed bool) {
	if o.current != nil {
		o.current.cancel()
	}
	o.generation++
	o.clearLocked(message, failed, false)
}

// resetIf is reset limited to generation, keeping credentials when retain is set
func (o *Onboarding) resetIf(generation uint64, message string, retain bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if generation != o.generation {
		return false
	}
	o.clearLocked(message, true, retain)
	return true
}

func (o *Onboarding) clearLocked(message string, failed, retain bool) {
	wasConnected := o.state == core.StateConnected
	o.state = core.StateDisconnected
	o.wallets = nil
	o.balance = nil
	o.challengeID = ""
	o.message = message
	o.failed = failed
	o.retryable = retain && o.creds.Valid()
	if !o.retryable {
		o.creds = core.Credentials{}
		o.identity = ""
		o.mode = ""
	}
	if wasConnected {
		o.metrics.SetConnected(false)
	}
}

// refreshBalance updates the displayed balance of the primary wallet
func (o *Onboarding) refreshBalance(ctx context.Context, generation uint64) error {
	o.mu.Lock()
	if generation != o.generation || len(o.wallets) == 0 {
		o.mu.Unlock()
		return nil
	}
	creds := o.creds
	walletID := o.wallets[0].ID
	o.mu.Unlock()

	start := time.Now()
	balances, err := o.custody.TokenBalances(ctx, creds, walletID)
	o.metrics.ObserveStep("token_balances", start, err)
	if err != nil {
		return fmt.Errorf("token balances: %w", err)
	}
	amount := core.StablecoinBalance(balances)

	o.mu.Lock()
	if generation == o.generation {
		o.balance = &amount
	}
	o.mu.Unlock()
	return nil
}

// replaceWallets stores a freshly listed wallet list for generation
func (o *Onboarding) replaceWallets(ctx context.Context, generation uint64, wallets []core.WalletRecord) error {
	o.persist.Lock()
	defer o.persist.Unlock()

	o.mu.Lock()
	current := generation == o.generation
	o.mu.Unlock()
	if !current {
		return errSuperseded
	}
	if err := o.sessions.SaveWallets(ctx, wallets); err != nil {
		return err
	}

	o.mu.Lock()
	if generation == o.generation {
		o.wallets = wallets
	}
	o.mu.Unlock()
	return nil
}

// refreshFailed ends the session when the credentials were rejected and
// generation is still the current one
func (o *Onboarding) refreshFailed(ctx context.Context, generation uint64, err error) error {
	if !errors.Is(err, core.ErrUnauthorized) {
		return err
	}

	o.persist.Lock()
	o.mu.Lock()
	if generation != o.generation {
		o.mu.Unlock()
		o.persist.Unlock()
		o.logger.Debug("ignoring rejected credentials of a superseded session", zap.Error(err))
		return err
	}
	o.logger.Warn("session credentials rejected, clearing session", zap.Error(err))
	o.resetLocked(MsgSessionExpired, true)
	o.mu.Unlock()

	if clearErr := o.sessions.Clear(ctx); clearErr != nil {
		o.logger.Error("failed to clear session", zap.Error(clearErr))
	}
	o.persist.Unlock()

	o.publish(ctx)
	return err
}

func (o *Onboarding) expired(sessionToken string) bool {
	if o.inspector == nil {
		return false
	}
	expiresAt, ok := o.inspector.ExpiresAt(sessionToken)
	return ok && expiresAt.Before(time.Now())
}

// publish announces the current state
func (o *Onboarding) publish(ctx context.Context) {
	if o.events == nil {
		return
	}
	status := o.Status()
	change := core.StateChange{
		State:    status.State,
		Identity: status.Identity,
		Address:  status.Address,
	}
	if err := o.events.PublishStateChange(context.WithoutCancel(ctx), change); err != nil {
		o.logger.Warn("failed to publish state change", zap.Error(err))
	}
}
