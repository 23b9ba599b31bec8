package main

import (
	"context"
	"log"

	"medilink-chat/config"
	"medilink-chat/internal/bridge"
	"medilink-chat/internal/bridge/threadid"
	"medilink-chat/internal/domain/conversation"
	"medilink-chat/internal/domain/message"
	"medilink-chat/internal/domain/user"
	"medilink-chat/internal/handler"
	"medilink-chat/internal/notify"
	medilinkredis "medilink-chat/internal/redis"
	"medilink-chat/internal/repository"
	"medilink-chat/internal/server"
	"medilink-chat/internal/services"
	"medilink-chat/internal/storage"
	"medilink-chat/pkg/database"
	"medilink-chat/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)

	database.Connect(cfg)
	if err := database.DB.AutoMigrate(
		&user.User{},
		&conversation.Conversation{},
		&conversation.Participant{},
		&message.Message{},
	); err != nil {
		log.Fatalf("Failed to apply GORM migrations: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := medilinkredis.NewClient(ctx, medilinkredis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	convRepo := repository.NewConversationRepository(database.DB)
	msgRepo := repository.NewMessageRepository(database.DB)
	userRepo := repository.NewUserRepository(database.DB)

	presence := medilinkredis.NewPresenceStore(redisClient, userRepo)
	notifier := notify.NewDispatcher(redisClient, cfg.PushChannel, l)
	limiter := medilinkredis.NewRateLimiter(redisClient, medilinkredis.DefaultRateLimitConfig())

	authService := services.NewAuthService(cfg.JWTSecret)
	chatService := services.NewChatService(convRepo, msgRepo, notifier, presence, l)

	var uploadService *services.UploadService
	if cfg.S3Bucket != "" {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			log.Fatalf("Failed to set up attachment storage: %v", err)
		}
		uploadService = services.NewUploadService(s3Client)
	} else {
		uploadService = services.NewUploadService(nil)
	}

	hub := server.NewHub(chatService, presence)
	chatService.AttachBroadcaster(hub)
	go hub.Run()

	mapper := threadid.NewMapper(cfg.CRMThreadPrefix)
	crmBridge := bridge.New(bridge.Config{
		SocketURL:      cfg.CRMSocketURL,
		APIToken:       cfg.CRMAPIToken,
		ActiveWindow:   cfg.CRMActiveWindow,
		RescanInterval: cfg.CRMRescanInterval,
		ReconnectDelay: cfg.CRMReconnectDelay,
	}, mapper, convRepo, msgRepo, userRepo, hub, notifier, presence, l)
	go crmBridge.Run(ctx)

	forwarder := bridge.NewForwarder(bridge.ForwarderConfig{
		DoctorAPIBase: cfg.CRMDoctorAPIBase,
		StaffAPIBase:  cfg.CRMStaffAPIBase,
		APIToken:      cfg.CRMAPIToken,
	}, mapper, l)
	chatService.AttachForwarder(forwarder)

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Chat:      handler.NewChatHandler(chatService),
		Upload:    handler.NewUploadHandler(uploadService),
		WebSocket: server.NewWebSocketHandler(hub, authService),
	}, authService, limiter)

	if err := srv.Start(func() {
		cancel()
		hub.Stop()
	}); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
