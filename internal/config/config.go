package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the configuration for the application.
type Config struct {
	APIBaseURL string
	APIKey     string // "id:secret" pair used to mint session tokens

	DatabasePath string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	apiBaseURL := os.Getenv("MEALBOARD_API_URL")
	if apiBaseURL == "" {
		return nil, fmt.Errorf("MEALBOARD_API_URL environment variable not set")
	}

	apiKey := os.Getenv("MEALBOARD_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("MEALBOARD_API_KEY environment variable not set")
	}
	if len(strings.Split(apiKey, ":")) != 2 {
		return nil, fmt.Errorf("MEALBOARD_API_KEY must be in id:secret format")
	}

	databasePath := os.Getenv("MEALBOARD_DB_PATH")
	if databasePath == "" {
		databasePath = "data/mealboard.db"
	}

	// Telegram Config (Optional for CLI, required for Bot)
	telegramBotToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	telegramWebhookURL := os.Getenv("TELEGRAM_WEBHOOK_URL")

	allowedIDs, err := parseUserIDs(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}

	var adminID int64
	if adminStr := os.Getenv("TELEGRAM_ADMIN_ID"); adminStr != "" {
		adminID, err = strconv.ParseInt(adminStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ADMIN_ID: %w", err)
		}
	}

	return &Config{
		APIBaseURL:             strings.TrimRight(apiBaseURL, "/"),
		APIKey:                 apiKey,
		DatabasePath:           databasePath,
		TelegramBotToken:       telegramBotToken,
		TelegramWebhookURL:     telegramWebhookURL,
		TelegramAllowedUserIDs: allowedIDs,
		AdminTelegramID:        adminID,
	}, nil
}

// parseUserIDs parses a comma-separated list of Telegram user IDs.
func parseUserIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}

	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("user id %q is not a number", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
