package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/pinwallet"
	"github.com/layer-3/pinwallet/adapters/tokenizer"
	"github.com/layer-3/pinwallet/internal/config"
	"github.com/layer-3/pinwallet/internal/logger"
	"github.com/layer-3/pinwallet/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:           "pinwallet",
	Short:         "PIN-protected custody wallet service",
	Long:          "pinwallet onboards users to a PIN-protected custody wallet and exposes the session to the UI and to a multi-chain framework.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wallet HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or clear the persisted session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted session without secrets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionShow(cmd.Context())
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionClear(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	sessionCmd.AddCommand(sessionShowCmd, sessionClearCmd)
	rootCmd.AddCommand(serveCmd, sessionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Custody.APIKey == "" {
		log.Warn("custody.api_key is not set; custody requests will be rejected")
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	wallet, err := pinwallet.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := wallet.Close(); err != nil {
			log.Warn("failed to close wallet", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           wallet.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := wallet.Run(ctx); err != nil {
			errCh <- fmt.Errorf("reconciler: %w", err)
		}
	}()
	go func() {
		log.Info("starting server", zap.String("address", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server stopped", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type sessionView struct {
	Found        bool       `json:"found"`
	UserID       string     `json:"user_id,omitempty"`
	WalletID     string     `json:"wallet_id,omitempty"`
	Address      string     `json:"address,omitempty"`
	Blockchain   string     `json:"blockchain,omitempty"`
	Wallets      int        `json:"wallets,omitempty"`
	TokenExpires *time.Time `json:"token_expires_at,omitempty"`
	TokenExpired bool       `json:"token_expired,omitempty"`
}

func openSessions(ctx context.Context) (*session.Store, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	kv, closeStore, err := pinwallet.OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	return session.NewStore(kv), closeStore, nil
}

func runSessionShow(ctx context.Context) error {
	sessions, closeStore, err := openSessions(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	snap, ok, err := sessions.Load(ctx)
	if err != nil {
		return err
	}

	view := sessionView{Found: ok}
	if ok {
		primary, _ := snap.Primary()
		view.UserID = snap.Identity.String()
		view.WalletID = primary.ID
		view.Address = primary.Address
		view.Blockchain = primary.Blockchain
		view.Wallets = len(snap.Wallets)

		inspector := tokenizer.NewJWTInspector()
		if expiresAt, ok := inspector.ExpiresAt(snap.Credentials.SessionToken); ok {
			view.TokenExpires = &expiresAt
			view.TokenExpired = tokenizer.Expired(inspector, snap.Credentials.SessionToken, time.Now())
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func runSessionClear(ctx context.Context) error {
	sessions, closeStore, err := openSessions(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	if err := sessions.Clear(ctx); err != nil {
		return err
	}
	fmt.Println("Session cleared")
	return nil
}
