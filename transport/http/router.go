package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterOptions configures SetupRouter
type RouterOptions struct {
	AccessToken string
	Logger      *zap.Logger

	// Metrics is served on /metrics when set
	Metrics http.Handler
}

// SetupRouter sets up the Gin router
func SetupRouter(handlers *WalletHandlers, opts RouterOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	// Wallet routes
	wallet := router.Group("/wallet")
	wallet.Use(AccessTokenMiddleware(opts.AccessToken))
	{
		wallet.GET("", handlers.Status)
		wallet.POST("/connect", handlers.Connect)
		wallet.POST("/retry", handlers.Retry)
		wallet.GET("/challenge", handlers.Challenge)
		wallet.POST("/challenge/:id", handlers.CompleteChallenge)
		wallet.POST("/refresh", handlers.Refresh)
		wallet.POST("/disconnect", handlers.Disconnect)
		wallet.GET("/account", handlers.Account)
		wallet.GET("/device", handlers.Device)
	}

	// Connector reads
	connector := router.Group("/connector")
	connector.Use(AccessTokenMiddleware(opts.AccessToken))
	{
		connector.GET("/accounts", handlers.ConnectorAccounts)
		connector.GET("/chain", handlers.ConnectorChain)
		connector.GET("/authorized", handlers.ConnectorAuthorized)
	}

	return router
}
