package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"harulog/pkg/config"
	"harulog/pkg/jwt"
	"harulog/pkg/logger"
	"harulog/pkg/middleware"
	"harulog/pkg/queue"
	notificationHTTP "harulog/services/notification/internal/controller/http"
	"harulog/services/notification/internal/entity"
	"harulog/services/notification/internal/repo/persistent"
	"harulog/services/notification/internal/usecase"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	_ "harulog/services/notification/docs" // Swagger docs
)

func Run(cfg *config.Config, log *logger.Logger, db *gorm.DB, redisClient *redis.Client, queueClient *queue.Client) {
	jwtService := jwt.NewService(cfg.JWTSecret)

	// Event store + in-memory subscription state
	eventStore := persistent.NewEventRepository(db)
	registry := usecase.NewRegistry()
	locks := usecase.NewRecipientLocks()

	// Core use cases
	dispatcher := usecase.NewDispatcher(eventStore, registry, locks, redisClient, log)
	subscriptions := usecase.NewSubscriptionManager(eventStore, registry, locks, log)

	// HTTP handlers
	notificationHandler := notificationHTTP.NewNotificationHandler(dispatcher, subscriptions, log, jwtService)

	// Setup router
	r := gin.Default()

	// CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "Last-Event-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	// Protected routes - require authentication
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(jwtService))
	{
		protected.GET("/notifications", notificationHandler.GetNotifications)
	}
	// SSE endpoint - handles authentication internally via query parameter
	// because EventSource cannot set an Authorization header
	api.GET("/notifications/subscribe", notificationHandler.Subscribe)
	// Internal routes - called by the friend, message, comment and diary
	// sharing services after their own writes commit
	internalAPI := api.Group("/notifications/internal")
	internalAPI.Use(middleware.RateLimitMiddleware(redisClient, 300, time.Minute))
	{
		internalAPI.POST("/friend-request", notificationHandler.SendFriendRequest)
		internalAPI.POST("/friend-accept", notificationHandler.SendFriendAccept)
		internalAPI.POST("/message", notificationHandler.SendMessage)
		internalAPI.POST("/comment", notificationHandler.SendComment)
		internalAPI.POST("/friend-post", notificationHandler.SendFriendPost)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Consume notification tasks published by the domain services
	if queueClient != nil {
		err := queueClient.ConsumeNotificationTasks(func(routingKey string, task map[string]interface{}) error {
			recipientID, _ := task["recipient_id"].(string)
			if recipientID == "" {
				return fmt.Errorf("invalid task: missing recipient_id")
			}

			kind, ok := kindForRoutingKey(routingKey)
			if !ok {
				return fmt.Errorf("unknown notification routing key: %s", routingKey)
			}

			payload, _ := task["payload"].(map[string]interface{})

			_, err := dispatcher.Dispatch(context.Background(), recipientID, kind, payload)
			return err
		})
		if err != nil {
			log.Error("Error starting notification queue consumer: %v", err)
		}
	}

	// Start server in a goroutine
	go func() {
		log.Info("Notification service starting on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Failed to start server: %v", err)
			panic(err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down notification service...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Close(); err != nil {
		log.Error("Error closing Redis: %v", err)
	}

	if queueClient != nil {
		queueClient.Close()
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
		panic(err)
	}

	log.Info("Notification service exited")
}

func kindForRoutingKey(routingKey string) (entity.Kind, bool) {
	switch routingKey {
	case "friend_request":
		return entity.KindFriendRequest, true
	case "friend_accept":
		return entity.KindFriendAccept, true
	case "message":
		return entity.KindMessage, true
	case "comment":
		return entity.KindComment, true
	case "friend_post":
		return entity.KindFriendPost, true
	}
	return "", false
}
