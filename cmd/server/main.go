package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"im-social/config"
	"im-social/internal/handler"
	"im-social/internal/model"
	"im-social/internal/repository"
	"im-social/internal/service"
	"im-social/pkg/bus"
	dbPkg "im-social/pkg/db"
	"im-social/pkg/jwt"
	"im-social/pkg/logger"
	"im-social/pkg/metrics"
	"im-social/pkg/outbox"
	"im-social/pkg/permission"
	redisPkg "im-social/pkg/redis"
	"im-social/pkg/response"
	"im-social/pkg/storage"
	"im-social/pkg/websocket"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. config
	cfg := config.LoadConfig()

	// 2. logging
	log := logger.InitLogger(cfg.Log)
	defer log.Sync()

	log.Info("=== im-social starting ===")
	log.Info("server configuration",
		zap.String("port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("database_host", cfg.Database.Host),
		zap.String("database_name", cfg.Database.Database),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("kafka_enabled", cfg.Kafka.Enabled),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Duration("jwt_expire_time", cfg.JWT.ExpireTime),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. database
	gdb, err := dbPkg.InitDB(cfg.Database)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer func() {
		if err := dbPkg.CloseDB(); err != nil {
			log.Error("close database failed", zap.Error(err))
		}
	}()
	if err := dbPkg.AutoMigrate(gdb, model.AllModels()...); err != nil {
		log.Fatal("auto migrate failed", zap.Error(err))
	}
	log.Info("database ready")

	ctx := context.Background()

	// 3.1 optional redis presence mirror
	var (
		redisClient *goredis.Client
		mirror      service.PresenceMirror
		cluster     handler.ClusterPresence
	)
	if cfg.Redis.Enabled {
		redisClient, err = redisPkg.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		store := redisPkg.NewPresenceStore(redisClient)
		mirror, cluster = store, store
		log.Info("redis presence mirror enabled")
	}

	// 3.2 attachment storage
	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("storage init failed", zap.Error(err))
	}

	// 3.3 realtime plumbing
	queue := outbox.New(cfg.Outbox.Workers, cfg.Outbox.QueueSize, cfg.Outbox.TaskTTL)
	hub := websocket.NewHub()
	presence := websocket.NewPresence()

	userRepo := repository.NewUserRepository(gdb)
	friendRepo := repository.NewFriendshipRepository(gdb)
	groupRepo := repository.NewGroupRepository(gdb)
	messageRepo := repository.NewMessageRepository(gdb)
	receiptRepo := repository.NewReceiptRepository(gdb)
	reactionRepo := repository.NewReactionRepository(gdb)

	perms := permission.NewStringEvaluator()
	admins := service.NewAdminDirectory(userRepo, perms)
	events := bus.New(hub, admins, bus.NewSink(cfg.Kafka), queue)

	// 3.4 services
	jwtSvc := jwt.NewJWTService(cfg.JWT)
	userSvc := service.NewUserService(userRepo, friendRepo, jwtSvc)
	messageSvc := service.NewMessageService(messageRepo, userRepo, groupRepo, friendRepo, presence, events, cfg.Chat.MaxContentLength)
	deliverySvc := service.NewDeliveryService(messageRepo, receiptRepo, userRepo, groupRepo, friendRepo, events)
	reactionSvc := service.NewReactionService(reactionRepo, messageRepo, groupRepo, events, cfg.Chat.MaxReactionTypes)
	recallSvc := service.NewRecallService(messageRepo, userRepo, groupRepo, files, perms, events, queue, cfg.Chat.RecallPlaceholder)
	sessionSvc := service.NewSessionService(deliverySvc, reactionSvc, userRepo, friendRepo, events, mirror, queue)

	gateway := websocket.NewGateway(hub, presence, userSvc, sessionSvc, cfg.WebSocket)
	sessionSvc.RegisterHandlers(gateway)

	userHandler := handler.NewUserHandler(userSvc, presence, cluster)

	// 4. gin mode
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 5. router
	router := gin.New()
	router.Use(logger.RequestLogger())
	router.Use(logger.RecoveryMiddleware())

	setupBasicRoutes(router)
	if cfg.Storage.Driver != "s3" && cfg.Storage.PublicURL != "" {
		router.Static(cfg.Storage.PublicURL, cfg.Storage.LocalDir)
	}

	handler.RegisterRoutes(router, jwtSvc, handler.Handlers{
		Users:    userHandler,
		Messages: handler.NewMessageHandler(messageSvc, deliverySvc, reactionSvc, recallSvc),
		Groups:   handler.NewGroupHandler(messageSvc, deliverySvc),
		Admin:    handler.NewAdminHandler(recallSvc, admins, userHandler),
	})

	router.GET("/ws", gateway.ServeWS)

	// 6. http server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("http server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	// 7. graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
	// disconnect hooks still publish, so the outbox closes after them
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		log.Warn("websocket connections did not drain", zap.Error(err))
	}
	if err := queue.Close(shutdownCtx); err != nil {
		log.Warn("outbox did not drain", zap.Error(err))
	}
	if err := events.Close(); err != nil {
		log.Warn("close admin sink failed", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Warn("close redis failed", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func setupBasicRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		if err := dbPkg.HealthCheck(); err != nil {
			status = "db-down"
		}
		response.Success(c, gin.H{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	router.GET("/metrics", metrics.Handler())
}
