package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"

	"careconnect/internal/config"
	"careconnect/internal/handlers/apiserver"
	appKafka "careconnect/internal/kafka"
	"careconnect/internal/middleware"
	appRedis "careconnect/internal/redis"
	"careconnect/internal/services"
	"careconnect/internal/storage"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	log.Println("API server configuration loaded.")

	// 2. Initialize the database
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Printf("warning: table migration may have failed: %v", err)
	}
	log.Println("API server database connection established.")

	// 3. Initialize the Redis client and the token blacklist backed by it
	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	tokenBlacklist := appRedis.NewRedisTokenBlacklist(redisClient)
	log.Println("Connected to Redis.")

	// 4. Repositories
	requestRepo := storage.NewGormConnectionRequestRepository(db)
	convoRepo := storage.NewGormConversationRepository(db)
	msgRepo := storage.NewGormMessageRepository(db)
	directory := storage.NewGormDirectory(db)

	// 5. Kafka producer; realtime events flow to the chat server through the
	// notifications topic
	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("failed to create Kafka producer: %v", err)
	}
	defer kfkProducer.Close()
	notifier := appKafka.NewNotifier(kfkProducer, cfg.Kafka.NotificationsTopic)
	log.Println("Kafka producer initialized (API server).")

	// 6. Services
	connectionService := services.NewConnectionService(requestRepo, directory, notifier)
	chatService := services.NewChatService(convoRepo, msgRepo, connectionService, notifier)

	// 7. Handlers
	connectionHandler := apiserver.NewConnectionHandler(connectionService)
	chatHandler := apiserver.NewChatHandler(chatService, directory)

	// 8. Routes
	r := mux.NewRouter()

	authMW := middleware.AuthMiddleware(cfg.Auth.JWTSecretKey, tokenBlacklist)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)

	connectionsRouter := apiRouter.PathPrefix("/connections").Subrouter()
	connectionsRouter.HandleFunc("/request", connectionHandler.SendRequestHandler).Methods(http.MethodPost)
	connectionsRouter.HandleFunc("/request-with-message", connectionHandler.SendRequestHandler).Methods(http.MethodPost)
	connectionsRouter.HandleFunc("/pending", connectionHandler.ListPendingHandler).Methods(http.MethodGet)
	connectionsRouter.HandleFunc("/sent", connectionHandler.ListSentHandler).Methods(http.MethodGet)
	connectionsRouter.HandleFunc("/accept/{requestID:[0-9]+}", connectionHandler.AcceptRequestHandler).Methods(http.MethodPut)
	connectionsRouter.HandleFunc("/reject/{requestID:[0-9]+}", connectionHandler.RejectRequestHandler).Methods(http.MethodPut)
	connectionsRouter.HandleFunc("/cancel/{requestID:[0-9]+}", connectionHandler.CancelRequestHandler).Methods(http.MethodDelete)
	connectionsRouter.HandleFunc("/delete/{requestID:[0-9]+}", connectionHandler.DeleteRequestHandler).Methods(http.MethodDelete)
	connectionsRouter.HandleFunc("/connected", connectionHandler.ListConnectedHandler).Methods(http.MethodGet)
	connectionsRouter.HandleFunc("/remove-connection/{userID:[0-9]+}", connectionHandler.RemoveConnectionHandler).Methods(http.MethodDelete)
	connectionsRouter.HandleFunc("/search", connectionHandler.SearchHandler).Methods(http.MethodGet)

	chatRouter := apiRouter.PathPrefix("/chat").Subrouter()
	chatRouter.HandleFunc("/conversation", chatHandler.CreateConversationHandler).Methods(http.MethodPost)
	chatRouter.HandleFunc("/conversations", chatHandler.ListConversationsHandler).Methods(http.MethodGet)
	chatRouter.HandleFunc("/conversations/{conversationID:[0-9]+}/clear", chatHandler.ClearConversationHandler).Methods(http.MethodDelete)
	chatRouter.HandleFunc("/messages", chatHandler.SendMessageHandler).Methods(http.MethodPost)
	chatRouter.HandleFunc("/messages/read", chatHandler.MarkReadHandler).Methods(http.MethodPost)
	chatRouter.HandleFunc("/messages/{conversationID:[0-9]+}", chatHandler.ListMessagesHandler).Methods(http.MethodGet)
	// No numeric constraint here: a malformed id still answers with an
	// idempotent success.
	chatRouter.HandleFunc("/messages/{messageID}", chatHandler.DeleteMessageHandler).Methods(http.MethodDelete)

	// 9. CORS
	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	corsHandler := handlers.CORS(corsOptions...)(r)

	// 10. HTTP server with graceful shutdown
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// No log.Fatalf from here on: a fatal would skip the deferred producer
	// close and lose buffered events.
	serverErr := make(chan error, 1)
	go func() {
		log.Printf("API server listening on %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Printf("API server failed: %v", err)
	case <-quit:
		log.Println("Shutdown signal received, stopping API server...")
		ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			log.Printf("API server forced to shut down: %v", err)
		}
	}
	log.Println("API server stopped.")
}
