package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/parklink-project/parklink/internal/client"
	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/db"
	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/metrics"
	"github.com/parklink-project/parklink/internal/util"
)

// SessionSource hands out the client of the running session.
type SessionSource interface {
	Current() *client.Client
	Reconnect()
}

// Server is the REST API server.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	sessions SessionSource
	history  *db.HistoryStore
	stream   *eventStream

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server. history may be nil when the history
// store is disabled.
func NewServer(cfg *config.Config, eventBus *events.EventBus, sessions SessionSource, history *db.HistoryStore) *Server {
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		eventBus: eventBus,
		sessions: sessions,
		history:  history,
		stream:   newEventStream(eventBus),
	}
	s.router = s.buildRouter()

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	apiCfg := s.cfg.GetApplicationData().API

	addr := fmt.Sprintf(":%d", apiCfg.Port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	lc := listenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	if apiCfg.UseTLS {
		if err := util.EnsureCertificate(apiCfg.CertFile, apiCfg.KeyFile, []string{"localhost", "127.0.0.1"}); err != nil {
			ln.Close()
			return fmt.Errorf("failed to prepare TLS certificate: %w", err)
		}
		cert, err := tls.LoadX509KeyPair(apiCfg.CertFile, apiCfg.KeyFile)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}

	log.Info().Str("addr", addr).Bool("tls", apiCfg.UseTLS).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	apiCfg := s.cfg.GetApplicationData().API
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())

	allowedOrigins := apiCfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	api.Use(SecurityHeaders())
	api.Use(NewRateLimiter(apiCfg.RateLimitRPS).Middleware())
	{
		api.GET("/ping", s.handlePing)
		api.GET("/status", s.handleStatus)
		api.GET("/players", s.handlePlayers)
		api.GET("/server_info", s.handleServerInfo)

		api.GET("/history/chat", s.handleChatHistory)
		api.GET("/history/players", s.handlePlayerHistory)
		api.GET("/history/sessions", s.handleSessionHistory)
		api.GET("/events", s.stream.handle)
	}

	control := api.Group("")
	control.Use(TokenAuth(apiCfg.Token))
	{
		control.POST("/chat", s.handleSendChat)
		control.POST("/reconnect", s.handleReconnect)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.stream.close()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
