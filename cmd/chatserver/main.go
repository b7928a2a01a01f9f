package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	confluent "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"

	"careconnect/internal/config"
	"careconnect/internal/events"
	"careconnect/internal/handlers/chatserver"
	appKafka "careconnect/internal/kafka"
	appRedis "careconnect/internal/redis"
	"careconnect/internal/realtime"
	"careconnect/internal/services"
	"careconnect/internal/storage"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	log.Println("Chat server configuration loaded.")

	// 2. Initialize the database
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	log.Println("Chat server database connection established.")

	// 3. Redis client, token blacklist and the presence backend
	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	tokenBlacklist := appRedis.NewRedisTokenBlacklist(redisClient)

	var presence realtime.PresenceRegistry
	switch cfg.Presence.Backend {
	case "redis":
		presence = realtime.NewRedisPresenceRegistry(redisClient, cfg.Presence.KeyName)
		log.Printf("Presence registry: redis (key %s)", cfg.Presence.KeyName)
	default:
		presence = realtime.NewMemoryPresenceRegistry()
		log.Println("Presence registry: memory")
	}

	// 4. Hub
	hub := realtime.NewHub(presence)
	go hub.Run()

	// 5. Repositories and services; the hub itself is the notifier so
	// service-side events fan out to local sockets directly
	requestRepo := storage.NewGormConnectionRequestRepository(db)
	convoRepo := storage.NewGormConversationRepository(db)
	msgRepo := storage.NewGormMessageRepository(db)
	directory := storage.NewGormDirectory(db)

	connectionService := services.NewConnectionService(requestRepo, directory, hub)
	chatService := services.NewChatService(convoRepo, msgRepo, connectionService, hub)

	// 6. Kafka consumer bridging API server events into the hub
	notifConsumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("failed to create Kafka consumer: %v", err)
	}
	defer notifConsumer.Close()

	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	go func() {
		topics := []string{cfg.Kafka.NotificationsTopic}
		log.Printf("Kafka notifications consumer starting, topic: %s, group: %s",
			cfg.Kafka.NotificationsTopic, cfg.Kafka.ConsumerGroup)
		err := notifConsumer.Consume(consumerCtx, topics, cfg.Kafka.ConsumerGroup,
			func(ctx context.Context, msg *confluent.Message) error {
				var env events.Envelope
				if err := json.Unmarshal(msg.Value, &env); err != nil {
					// Poison messages are logged and committed, not retried.
					log.Printf("dropping undecodable notification at offset %v: %v", msg.TopicPartition.Offset, err)
					return nil
				}
				hub.Dispatch(env.ConversationID, env.TargetUsers, env.Event)
				return nil
			})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Kafka notifications consumer error: %v", err)
		}
		log.Println("Kafka notifications consumer stopped.")
	}()

	// 7. WebSocket route
	wsHandler := chatserver.NewWebSocketHandler(hub, chatService, tokenBlacklist, &cfg)

	r := mux.NewRouter()
	r.HandleFunc(cfg.Server.WebSocketPath, wsHandler.HandleWebSocket)

	// 8. HTTP server with graceful shutdown
	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:           serverAddr,
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// No log.Fatalf from here on, so the deferred consumer close still runs.
	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Chat server listening on %s (websocket path %s)", serverAddr, cfg.Server.WebSocketPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Printf("Chat server failed: %v", err)
	case <-quit:
		log.Println("Shutdown signal received, stopping chat server...")
		ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Chat server forced to shut down: %v", err)
		}
	}

	cancelConsumers()
	log.Println("Chat server stopped.")
}
