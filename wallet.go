// Package pinwallet wires the PIN-protected custody wallet: onboarding
// machine, signing bridge, session store, connector, framework, reconciler
// and the HTTP surface the UI talks to.
package pinwallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/pinwallet/adapters/custody"
	"github.com/layer-3/pinwallet/adapters/events"
	"github.com/layer-3/pinwallet/adapters/signer"
	"github.com/layer-3/pinwallet/adapters/tokenizer"
	"github.com/layer-3/pinwallet/connector"
	"github.com/layer-3/pinwallet/framework"
	"github.com/layer-3/pinwallet/internal/config"
	"github.com/layer-3/pinwallet/internal/metrics"
	"github.com/layer-3/pinwallet/ports"
	"github.com/layer-3/pinwallet/reconcile"
	"github.com/layer-3/pinwallet/service"
	"github.com/layer-3/pinwallet/session"
	transport "github.com/layer-3/pinwallet/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type options struct {
	custody ports.Custody
	store   ports.Store
}

// Option overrides a component built by New
type Option func(*options)

// WithCustody replaces the HTTP custody client
func WithCustody(c ports.Custody) Option {
	return func(o *options) { o.custody = c }
}

// WithStore replaces the configured session backend
func WithStore(s ports.Store) Option {
	return func(o *options) { o.store = s }
}

// Wallet is the assembled service
type Wallet struct {
	logger     *zap.Logger
	registry   *prometheus.Registry
	sessions   *session.Store
	bridge     *signer.Bridge
	machine    *service.Onboarding
	framework  *framework.Config
	connector  *connector.Connector
	accounts   *reconcile.AccountQuery
	reconciler *reconcile.Reconciler
	pubsub     events.PubSub
	router     *gin.Engine
	closers    []func() error
}

// New assembles a wallet from cfg
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Wallet, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Wallet{
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	kv := o.store
	if kv == nil {
		opened, closeStore, err := OpenStore(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		kv = opened
		w.closers = append(w.closers, closeStore)
	}
	w.sessions = session.NewStore(kv)

	pubsub, closeEvents, err := openEvents(ctx, cfg.Events, events.NewZapLoggerAdapter(logger.Named("events")))
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to open events: %w", err)
	}
	w.pubsub = pubsub
	w.closers = append(w.closers, closeEvents)
	publisher := events.NewWatermillPublisher(pubsub.Publisher)

	custodyClient := o.custody
	if custodyClient == nil {
		custodyClient = custody.NewClient(custody.Config{
			BaseURL:           cfg.Custody.BaseURL,
			APIKey:            cfg.Custody.APIKey,
			IssueTokenTimeout: cfg.Custody.IssueTokenTimeout,
			RequestTimeout:    cfg.Custody.RequestTimeout,
		}, custody.WithLogger(logger.Named("custody")))
	}

	m := metrics.New(w.registry)
	inspector := tokenizer.NewJWTInspector()

	w.bridge = signer.NewBridge(cfg.Signer.AppID, kv, logger.Named("signer"))
	w.machine = service.NewOnboarding(custodyClient, w.bridge, w.sessions, service.Config{
		AccountType: cfg.Custody.AccountType,
		Blockchains: cfg.Custody.Blockchains,
		Settle: service.SettlePolicy{
			InitialDelay: cfg.Onboarding.SettleInitialDelay,
			Multiplier:   cfg.Onboarding.SettleMultiplier,
			MaxAttempts:  cfg.Onboarding.SettleMaxAttempts,
		},
	},
		service.WithLogger(logger.Named("onboarding")),
		service.WithMetrics(m),
		service.WithEvents(publisher),
		service.WithInspector(inspector),
	)

	w.framework = framework.New(publisher, logger.Named("framework"))
	w.connector = connector.New(w.sessions, w.bridge, w.framework, cfg.Chain.ID, inspector, logger.Named("connector"),
		connector.WithTerminator(w.machine))
	w.framework.Register(w.connector)

	w.accounts = reconcile.NewAccountQuery(w.machine)
	w.reconciler = reconcile.New(w.machine, w.framework, connector.ID, w.accounts, m, logger.Named("reconcile"))

	routerOpts := transport.RouterOptions{
		AccessToken: cfg.HTTP.AccessToken,
		Logger:      logger.Named("http"),
	}
	if cfg.Metrics.Enabled {
		routerOpts.Metrics = promhttp.HandlerFor(w.registry, promhttp.HandlerOpts{})
	}
	handlers := transport.NewWalletHandlers(w.machine, w.bridge, w.accounts, w.connector)
	w.router = transport.SetupRouter(handlers, routerOpts)

	return w, nil
}

// Run restores a persisted session and keeps the framework in step with the
// machine until ctx is done
func (w *Wallet) Run(ctx context.Context) error {
	status := w.machine.Restore(ctx)
	if status.Connected() {
		w.logger.Info("resumed persisted session",
			zap.String("user_id", status.Identity.String()),
			zap.String("address", status.Address))
	}
	return w.reconciler.Run(ctx, w.pubsub.Subscriber)
}

// Close releases the event and store backends
func (w *Wallet) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	w.closers = nil
	return errors.Join(errs...)
}

// Router returns the gin router
func (w *Wallet) Router() *gin.Engine {
	return w.router
}

// Onboarding returns the onboarding machine
func (w *Wallet) Onboarding() *service.Onboarding {
	return w.machine
}

// Bridge returns the signing bridge
func (w *Wallet) Bridge() *signer.Bridge {
	return w.bridge
}

// Connector returns the framework connector
func (w *Wallet) Connector() *connector.Connector {
	return w.connector
}

// Framework returns the in-process framework
func (w *Wallet) Framework() *framework.Config {
	return w.framework
}

// Sessions returns the session store
func (w *Wallet) Sessions() *session.Store {
	return w.sessions
}
