package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medilink-chat/config"
	"medilink-chat/internal/handler"
	"medilink-chat/internal/middleware"
	"medilink-chat/internal/redis"
	"medilink-chat/internal/services"
	"medilink-chat/internal/transport/httpdto"
	"medilink-chat/pkg/database"
	"medilink-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Chat      *handler.ChatHandler
	Upload    *handler.UploadHandler
	WebSocket *WebSocketHandler
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, limiter *redis.RateLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := database.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	s.engine.GET("/ws", handlers.WebSocket.Handle)

	auth := middleware.AuthMiddleware(authService)

	conversations := s.engine.Group("/v1/conversations", auth)
	{
		conversations.GET("", handlers.Chat.ListConversations)
		conversations.POST("/direct", handlers.Chat.GetOrCreateDirect)
		conversations.GET("/:id/messages", handlers.Chat.ListMessages)
		if limiter != nil {
			conversations.POST("/:id/messages", middleware.MessageRateLimitMiddleware(limiter), handlers.Chat.SendMessage)
		} else {
			conversations.POST("/:id/messages", handlers.Chat.SendMessage)
		}
		conversations.POST("/:id/read", handlers.Chat.MarkRead)
	}

	messages := s.engine.Group("/v1/messages", auth)
	{
		messages.POST("/:message_id/delivered", handlers.Chat.MarkDelivered)
		messages.DELETE("/:message_id", handlers.Chat.DeleteMessage)
	}

	uploads := s.engine.Group("/v1/uploads", auth)
	{
		uploads.POST("/presign", handlers.Upload.Presign)
		uploads.GET("/download-url", handlers.Upload.DownloadURL)
	}
}

func (s *Server) Start(onShutdown func()) error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.AppPort)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	if onShutdown != nil {
		onShutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
