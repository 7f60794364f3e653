package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mealboard/internal/api"
	"mealboard/internal/chat"
	"mealboard/internal/clipper"
	"mealboard/internal/config"
	"mealboard/internal/database"
	"mealboard/internal/localstate"
	"mealboard/internal/mealplan"
	"mealboard/internal/metrics"
	"mealboard/internal/recipe"
	"mealboard/internal/telegram"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.TelegramBotToken == "" || cfg.TelegramWebhookURL == "" {
		log.Fatalf("TELEGRAM_BOT_TOKEN and TELEGRAM_WEBHOOK_URL must be set for the bot")
	}

	// 2. Initialize the local database and repositories
	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	recipeRepo := recipe.NewRepository(db.SQL)
	sessionRepo := telegram.NewSessionRepository(db.SQL)
	stateStore := localstate.NewStore(db.SQL)
	metricsStore := metrics.NewStore(db.SQL)

	// 3. Initialize the remote API client
	client, err := api.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create API client: %v", err)
	}

	// 4. Initialize the stores; hydrate chat state before wiring the bot
	chatStore := chat.NewStore(client, stateStore, metricsStore)
	if err := chatStore.Hydrate(); err != nil {
		log.Printf("Warning: failed to hydrate chat state: %v", err)
	}
	planStore := mealplan.NewStore(client, metricsStore)
	recipeClipper := clipper.NewClipper(client, recipeRepo)

	// 5. Initialize Telegram Bot
	bot, err := telegram.NewBot(cfg, chatStore, planStore, recipeClipper, metricsStore, recipeRepo, sessionRepo)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram Bot: %v", err)
	}

	// 6. Start Server with Graceful Shutdown
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	bot.RegisterHandlers()

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: nil,
	}

	go func() {
		log.Printf("Mealboard Bot Server listening on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	chatStore.CancelPendingAssistantReply()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
