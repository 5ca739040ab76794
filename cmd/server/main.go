package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/le-tueur/chatvc/internal/auth"
	"github.com/le-tueur/chatvc/internal/bot"
	"github.com/le-tueur/chatvc/internal/config"
	"github.com/le-tueur/chatvc/internal/database"
	"github.com/le-tueur/chatvc/internal/handlers"
	"github.com/le-tueur/chatvc/internal/notify"
	"github.com/le-tueur/chatvc/internal/protocol"
	"github.com/le-tueur/chatvc/internal/services"
	"github.com/le-tueur/chatvc/internal/websocket"
	"github.com/le-tueur/chatvc/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize persistence
	repo, err := database.Open(cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to open %s storage: %v", cfg.Storage.Backend, err)
	}
	defer repo.Close()

	store := services.NewModerationStore(repo, services.WithSaveDelay(cfg.Chat.SaveDebounce))
	loadCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := store.Load(loadCtx); err != nil {
		logger.Error("%v, starting with an empty chat", err)
	}
	cancel()

	// Initialize services
	creds, err := auth.LoadCredentials(cfg.Credentials.File)
	if err != nil {
		logger.Fatal("Failed to load credentials: %v", err)
	}
	authService, err := auth.NewService(creds, cfg.JWT)
	if err != nil {
		logger.Fatal("Invalid credential table: %v", err)
	}

	modBot := bot.NewRuleBot(cfg.Bot.AllowedDomains)
	opts := protocol.Options{
		Responder:        modBot,
		Notifier:         notify.New(cfg.Telegram),
		MaxMessageLength: cfg.Chat.MaxMessageLength,
	}
	if cfg.Bot.AutoModeration {
		opts.Analyzer = modBot
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(cfg.Chat.HeartbeatInterval, cfg.Chat.ClosureTick)
	hub.SetReadLimit(websocket.ReadLimitFor(cfg.Chat.MaxMessageLength))
	chatHandler := protocol.NewHandler(store, hub, authService, opts)
	hub.SetDispatcher(chatHandler)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go hub.Run(ctx)

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	wsHandlers := handlers.NewWebSocketHandlers(authService, hub, cfg.Server.RequireWSToken)
	chatHandlers := handlers.NewChatHandlers(store, hub, cfg.Storage.Backend)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, authHandlers, wsHandlers, chatHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	logger.Info("💾 Storage backend: %s", cfg.Storage.Backend)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error: %v", err)
	}
	stop()
	hub.Shutdown()
	chatHandler.Close()

	if err := store.Flush(shutdownCtx); err != nil {
		logger.Error("Failed to save chat state: %v", err)
	}
}

func setupRoutes(mux *http.ServeMux, authHandlers *handlers.AuthHandlers, wsHandlers *handlers.WebSocketHandlers, chatHandlers *handlers.ChatHandlers) {
	// Auth routes
	mux.HandleFunc("/login", authHandlers.Login)

	// Read-only chat routes
	mux.HandleFunc("/api/messages", chatHandlers.Messages)
	mux.HandleFunc("/health", chatHandlers.Health)

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   POST /login")
	logger.Info("   GET  /api/messages")
	logger.Info("   GET  /health")
	logger.Info("   GET  /ws?token=...")
}
