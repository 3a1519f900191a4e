package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/KavishkaDulshan/Chat-App-Backend/internal/blob"
	"github.com/KavishkaDulshan/Chat-App-Backend/internal/chat"
	"github.com/KavishkaDulshan/Chat-App-Backend/internal/config"
	"github.com/KavishkaDulshan/Chat-App-Backend/internal/crypto"
	"github.com/KavishkaDulshan/Chat-App-Backend/internal/db"
	myMiddleware "github.com/KavishkaDulshan/Chat-App-Backend/internal/middleware"
	"github.com/KavishkaDulshan/Chat-App-Backend/internal/push"
	"github.com/KavishkaDulshan/Chat-App-Backend/internal/user"
)

func main() {
	// 1. Config & Logging
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("❌ Config error: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(level)
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.Database.DSN)
	if err != nil {
		logrus.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	logrus.Info("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		logrus.Fatalf("❌ Migration failed: %v", err)
	}
	logrus.Info("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer)
	// Without Redis the hub runs single-instance and presence counts live
	// in memory; fine for dev, not for a multi-node deployment.
	var bus chat.Bus
	var counter chat.SessionCounter = chat.NewMemorySessionCounter()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			logrus.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		bus = chat.NewRedisBus(redisClient)
		counter = chat.NewRedisSessionCounter(redisClient)
		logrus.Info("✅ Connected to Redis")
	} else {
		logrus.Warn("⚠️ REDIS_ADDR not set, running single-instance")
	}

	// 4. Collaborators
	codec := crypto.NewCodec(cfg.Crypto.MessageKey)

	var notifier push.Notifier = push.Nop{}
	if cfg.Push.Endpoint != "" {
		notifier = push.NewHTTPNotifier(cfg.Push.Endpoint, cfg.Push.APIKey)
		logrus.Info("✅ Push notifier configured")
	} else {
		logrus.Warn("⚠️ PUSH_ENDPOINT not set, offline notifications disabled")
	}

	blobStore, err := blob.NewDiskStore(cfg.Uploads.Dir, cfg.Uploads.BaseURL)
	if err != nil {
		logrus.Fatalf("❌ Failed to prepare uploads dir: %v", err)
	}
	blobHandler := blob.NewHandler(blobStore)

	// 5. Initialize User Feature
	userStore := user.NewSQLStore(database.Conn)
	userService := user.NewService(userStore, cfg.JWT.Secret, time.Duration(cfg.JWT.TTLHours)*time.Hour)
	userHandler := user.NewHandler(userService)

	// 6. Initialize Chat Feature
	chatStore := chat.NewSQLStore(database.Conn)

	hub := chat.NewHub(bus)
	go hub.Run()
	go hub.SubscribeToBus()

	presence := chat.NewPresence(counter, userStore, chatStore, hub)
	chatService := chat.NewService(hub, presence, chatStore, chatStore, userStore, codec, notifier)
	chatHandler := chat.NewHandler(chatService)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 7. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Handle("/uploads/*", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(blobStore.Dir()))))

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/api/me", userHandler.Me)
		r.Post("/api/push/tokens", userHandler.RegisterPushToken)
		r.Post("/api/upload", blobHandler.Upload)

		// WebSocket (Real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Post("/api/conversations", chatHandler.StartConversation) // Find/Create Chat
		r.Get("/api/conversations", chatHandler.ListConversations)  // Chat list + unread
		r.Get("/api/messages", chatHandler.GetChatHistory)          // Load History
	})

	logrus.Infof("🚀 Server starting on %s", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, r); err != nil {
		logrus.Fatal(err)
	}
}
