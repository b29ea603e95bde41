package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"roomchat-service/internal/config"
	"roomchat-service/internal/db"
	"roomchat-service/internal/feed"
	"roomchat-service/internal/handlers"
	"roomchat-service/internal/middleware"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/profile"
	"roomchat-service/internal/rabbitmq"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/session"
	"roomchat-service/internal/telemetry"
	"roomchat-service/internal/upload"
	"roomchat-service/internal/ws"
)

func main() {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("zap.NewProduction: %v", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	cfg := config.Load()

	shutdownTracing, err := telemetry.InitTracer(context.Background(), cfg.OTLPEndpoint, "roomchat-service", cfg.Environment)
	if err != nil {
		logger.Fatalf("init tracer: %v", err)
	}

	database, err := db.Connect(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	logger.Infow("event publisher ready", "mode", rabbitmq.PublisherMode(publisher))

	if eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err == nil {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, "roomchat-service", cfg.Environment, logger)

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	sessions := session.NewManager(session.NewTokens(cfg.JWTSecret), userRepo, logger)
	messageFeed := feed.New(roomRepo, messageRepo, sessions, logger)
	sessions.OnChange(func(change session.Change) {
		if !change.SignedIn {
			messageFeed.CloseForUser(change.Principal.ID)
		}
	})

	uploads := upload.NewPipeline(upload.NewDiskStore(cfg.UploadDir, cfg.UploadBaseURL), logger)
	editor := profile.NewEditor(userRepo, uploads)

	authHandler := handlers.NewAuthHandler(userRepo, sessions, audit)
	roomHandler := handlers.NewRoomHandler(roomRepo, audit)
	messageHandler := handlers.NewMessageHandler(messageFeed, uploads, audit)
	profileHandler := handlers.NewProfileHandler(editor, sessions, audit)
	feedWS := ws.NewFeedSocketHandler(messageFeed, sessions, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("roomchat-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(sessions)

	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)
	router.POST("/auth/logout", authHandler.Logout)

	router.GET("/rooms", authMiddleware, roomHandler.ListRooms)
	router.POST("/rooms", authMiddleware, roomHandler.CreateRoom)
	router.GET("/rooms/:room_id/messages", authMiddleware, messageHandler.GetMessages)
	router.POST("/rooms/:room_id/messages", authMiddleware, messageHandler.PostMessage)

	router.GET("/profile", authMiddleware, profileHandler.GetProfile)
	router.PUT("/profile/name", authMiddleware, profileHandler.UpdateName)
	router.PUT("/profile/avatar", authMiddleware, profileHandler.UpdateAvatar)

	router.GET("/ws/rooms/:room_id", feedWS.Handle)

	router.Static("/files", cfg.UploadDir)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-Id", "X-Device-Id"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler.Handler(router),
		IdleTimeout:  120 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Infow("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("could not listen on %s: %v", srv.Addr, err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Infow("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Warnw("tracer shutdown failed", "error", err)
	}

	logger.Info("server exited gracefully")
}
