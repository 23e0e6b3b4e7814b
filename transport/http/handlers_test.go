package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/pinwallet/adapters/signer"
	"github.com/layer-3/pinwallet/adapters/store"
	"github.com/layer-3/pinwallet/connector"
	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/reconcile"
	"github.com/layer-3/pinwallet/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const walletAddress = "0x1111111111111111111111111111111111111111"

type walletStub struct {
	mu         sync.Mutex
	status     core.Status
	startErr   error
	refreshErr error
	started    []string
	retries    int
}

func (w *walletStub) Start(_ context.Context, identity string, mode core.Mode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.startErr != nil {
		return w.startErr
	}
	w.started = append(w.started, identity+"/"+string(mode))
	w.status = core.Status{State: core.StateCreatingIdentity, Identity: core.Identity(identity), Mode: mode}
	return nil
}

func (w *walletStub) StartRetry(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.startErr != nil {
		return w.startErr
	}
	w.retries++
	return nil
}

func (w *walletStub) Status() core.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *walletStub) Refresh(context.Context) (core.Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status, w.refreshErr
}

func (w *walletStub) Disconnect(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = core.Status{State: core.StateDisconnected}
	return nil
}

type testServer struct {
	router  *gin.Engine
	wallet  *walletStub
	bridge  *signer.Bridge
	session *session.Store
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, core.ConnectorEvent) {}

func newTestServer(t *testing.T, accessToken string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	kv := store.NewMemoryStore()
	sessions := session.NewStore(kv)
	bridge := signer.NewBridge("app-1", kv, zap.NewNop())
	wallet := &walletStub{status: core.Status{State: core.StateDisconnected}}
	conn := connector.New(sessions, bridge, nopEmitter{}, 5042002, nil, nil)

	registry := prometheus.NewRegistry()
	handlers := NewWalletHandlers(wallet, bridge, reconcile.NewAccountQuery(wallet), conn)
	router := SetupRouter(handlers, RouterOptions{
		AccessToken: accessToken,
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	return &testServer{router: router, wallet: wallet, bridge: bridge, session: sessions}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestConnectRoute(t *testing.T) {
	s := newTestServer(t, "")

	w, body := s.do(t, http.MethodPost, "/wallet/connect", map[string]string{"user_id": "alice1", "mode": "login"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "alice1", body["user_id"])
	assert.Equal(t, []string{"alice1/login"}, s.wallet.started)

	w, _ = s.do(t, http.MethodPost, "/wallet/connect", map[string]string{"user_id": "alice1"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "alice1/create", s.wallet.started[1])
}

func TestConnectRoute_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid identity", core.ErrInvalidIdentity, http.StatusBadRequest},
		{"in flight", core.ErrOnboardingInFlight, http.StatusConflict},
		{"connected", core.ErrAlreadyConnected, http.StatusConflict},
		{"signer", core.ErrSignerNotReady, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, "")
			s.wallet.startErr = tt.err

			w, body := s.do(t, http.MethodPost, "/wallet/connect", map[string]string{"user_id": "alice1"})
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}

	s := newTestServer(t, "")
	w, _ := s.do(t, http.MethodPost, "/wallet/connect", map[string]string{"user_id": "alice1", "mode": "signup"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.wallet.started)
}

func TestRetryRoute(t *testing.T) {
	s := newTestServer(t, "")

	w, _ := s.do(t, http.MethodPost, "/wallet/retry", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, s.wallet.retries)

	s.wallet.startErr = core.ErrNothingToRetry
	w, _ = s.do(t, http.MethodPost, "/wallet/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestChallengeRoutes(t *testing.T) {
	s := newTestServer(t, "")

	w, _ := s.do(t, http.MethodGet, "/wallet/challenge", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	result := make(chan error, 1)
	s.bridge.SetAuthentication(core.Credentials{SessionToken: "t1", EncryptionKey: "k1"})
	s.bridge.Execute("c1", func(err error) { result <- err })

	w, body := s.do(t, http.MethodGet, "/wallet/challenge", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", body["challenge_id"])
	assert.Equal(t, "app-1", body["app_id"])
	assert.Equal(t, "t1", body["user_token"])
	assert.Equal(t, "k1", body["encryption_key"])

	w, _ = s.do(t, http.MethodPost, "/wallet/challenge/other", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPost, "/wallet/challenge/c1", map[string]string{"error": "PIN entry cancelled"})
	assert.Equal(t, http.StatusOK, w.Code)
	err := <-result
	assert.ErrorIs(t, err, core.ErrSigningFailed)
	assert.Contains(t, err.Error(), "PIN entry cancelled")

	w, _ = s.do(t, http.MethodPost, "/wallet/challenge/c1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChallengeRoute_Success(t *testing.T) {
	s := newTestServer(t, "")

	result := make(chan error, 1)
	s.bridge.Execute("c2", func(err error) { result <- err })

	w, _ := s.do(t, http.MethodPost, "/wallet/challenge/c2", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, <-result)
}

func TestRefreshRoute(t *testing.T) {
	s := newTestServer(t, "")

	s.wallet.refreshErr = core.ErrNotConnected
	w, _ := s.do(t, http.MethodPost, "/wallet/refresh", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	s.wallet.refreshErr = core.ErrUnauthorized
	w, _ = s.do(t, http.MethodPost, "/wallet/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	s.wallet.refreshErr = nil
	w, _ = s.do(t, http.MethodPost, "/wallet/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusDisconnectAndAccount(t *testing.T) {
	s := newTestServer(t, "")
	s.wallet.status = core.Status{State: core.StateConnected, Address: walletAddress, Blockchain: "ARC-TESTNET"}

	w, body := s.do(t, http.MethodGet, "/wallet", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, walletAddress, body["address"])

	w, body = s.do(t, http.MethodGet, "/wallet/account", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["is_connected"])
	assert.Equal(t, "ARC-TESTNET", body["blockchain"])

	w, body = s.do(t, http.MethodPost, "/wallet/disconnect", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(core.StateDisconnected), body["state"])
}

func TestDeviceRoute(t *testing.T) {
	s := newTestServer(t, "")

	_, first := s.do(t, http.MethodGet, "/wallet/device", nil)
	_, second := s.do(t, http.MethodGet, "/wallet/device", nil)
	assert.NotEmpty(t, first["device_id"])
	assert.Equal(t, first["device_id"], second["device_id"])
}

func TestConnectorRoutes(t *testing.T) {
	s := newTestServer(t, "")

	_, body := s.do(t, http.MethodGet, "/connector/authorized", nil)
	assert.Equal(t, false, body["authorized"])
	_, body = s.do(t, http.MethodGet, "/connector/accounts", nil)
	assert.Empty(t, body["accounts"])

	require.NoError(t, s.session.Save(context.Background(), core.Snapshot{
		Identity:    "alice1",
		Credentials: core.Credentials{SessionToken: "t1", EncryptionKey: "k1"},
		Wallets:     []core.WalletRecord{{ID: "w1", Address: walletAddress, Blockchain: "ARC-TESTNET"}},
	}))

	_, body = s.do(t, http.MethodGet, "/connector/authorized", nil)
	assert.Equal(t, true, body["authorized"])
	_, body = s.do(t, http.MethodGet, "/connector/accounts", nil)
	assert.Equal(t, []any{walletAddress}, body["accounts"])
	assert.Equal(t, connector.ID, body["connector_id"])
	_, body = s.do(t, http.MethodGet, "/connector/chain", nil)
	assert.Equal(t, float64(5042002), body["chain_id"])
}

func TestAccessToken(t *testing.T) {
	s := newTestServer(t, "secret")

	w, _ := s.do(t, http.MethodGet, "/wallet", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/wallet", nil, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/connector/chain", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/wallet", nil, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
