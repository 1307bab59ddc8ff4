package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"peer-server/internal/config"
	"peer-server/internal/db"
	"peer-server/internal/handlers"
	"peer-server/internal/middleware"
	"peer-server/internal/motd"
	"peer-server/internal/observability"
	"peer-server/internal/rabbitmq"
	"peer-server/internal/repositories"
	"peer-server/internal/session"
	"peer-server/internal/telemetry"
	"peer-server/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracer, err := observability.InitTracer(context.Background(), cfg.OTLPEndpoint, "peer-server", cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("tracer shutdown: %v", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)

	audit := telemetry.NewAuditEmitter(publisher, "audit_log.peer", "peer-server", cfg.Environment)

	sessions := session.NewRegistry(cfg.SessionTTL)
	defer sessions.Close()

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()

	accountHandler := handlers.NewAccountHandler(userRepo, sessions, audit)
	chatHandler := handlers.NewChatHandler(chatRepo, userRepo, audit)
	messageHandler := handlers.NewMessageHandler(chatRepo, userRepo, messageRepo, hub, audit)
	feedHandler := ws.NewFeedHandler(hub, chatRepo, sessions, cfg.WSAuthTimeout)

	rotator, err := motd.NewRotator(cfg.MOTDPath, 5)
	if err != nil {
		log.Fatalf("failed to load motd file: %v", err)
	}

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("peer-server"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(sessions)

	router.GET("/", handlers.Index)
	router.GET("/motd", handlers.MOTDHandler(rotator))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/users", accountHandler.Register)
	router.POST("/auth", accountHandler.Authenticate)
	router.POST("/logout", authMiddleware, accountHandler.Logout)
	router.GET("/users", accountHandler.ListUsers)
	router.GET("/users/:id", accountHandler.GetUser)
	router.GET("/userid/:username/:discriminator", accountHandler.LookupHandle)

	router.POST("/chats", authMiddleware, chatHandler.CreateChat)
	router.GET("/chats", chatHandler.ListChats)
	router.GET("/chats/:chat_id", chatHandler.GetChatInfo)
	router.POST("/chats/:chat_id/members", authMiddleware, chatHandler.Invite)
	router.DELETE("/chats/:chat_id/members/:user_id", authMiddleware, chatHandler.RemoveMember)
	router.POST("/chats/:chat_id/messages", authMiddleware, messageHandler.PostMessage)
	router.GET("/chats/:chat_id/messages", authMiddleware, messageHandler.GetHistory)

	router.GET("/ws/chats/:chat_id", feedHandler.Handle)

	handlers.RegisterDebugRoutes(router, audit, cfg.Debug)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
