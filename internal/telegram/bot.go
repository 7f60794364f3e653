package telegram

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"mealboard/internal/chat"
	"mealboard/internal/clipper"
	"mealboard/internal/config"
	"mealboard/internal/mealplan"
	"mealboard/internal/metrics"
	"mealboard/internal/recipe"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// editInterval throttles progressive message edits while a reply streams;
// Telegram rate-limits edits well below typical delta frequency.
const editInterval = 1200 * time.Millisecond

// streamTimeout bounds how long one chat turn may stay open.
const streamTimeout = 3 * time.Minute

// Bot wraps the Telegram API around the chat and meal-plan stores.
type Bot struct {
	api          *tgbotapi.BotAPI
	chatStore    *chat.Store
	planStore    *mealplan.Store
	clipper      *clipper.Clipper
	metricsStore *metrics.Store
	recipes      *recipe.Repository
	sessions     *SessionRepository
	cfg          *config.Config
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(
	cfg *config.Config,
	chatStore *chat.Store,
	planStore *mealplan.Store,
	clip *clipper.Clipper,
	metricsStore *metrics.Store,
	recipes *recipe.Repository,
	sessions *SessionRepository,
) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	wh, _ := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	log.Printf("Webhook set response: %s", resp.Description)

	return &Bot{
		api:          bot,
		chatStore:    chatStore,
		planStore:    planStore,
		clipper:      clip,
		metricsStore: metricsStore,
		recipes:      recipes,
		sessions:     sessions,
		cfg:          cfg,
	}, nil
}

// RegisterHandlers registers the webhook handler with the default HTTP mux.
func (b *Bot) RegisterHandlers() {
	http.HandleFunc("/webhook", b.handleWebhook)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		log.Printf("Error parsing update: %v", err)
		return
	}

	if update.Message == nil {
		return
	}

	isAllowed := false
	for _, id := range b.cfg.TelegramAllowedUserIDs {
		if update.Message.From.ID == id {
			isAllowed = true
			break
		}
	}
	if !isAllowed {
		log.Printf("⚠️ Unauthorized access attempt from UserID: %d (@%s)", update.Message.From.ID, update.Message.From.UserName)
		return
	}

	go b.processMessage(update.Message)
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)

	switch {
	case text == "/start" || text == "/help":
		b.sendMarkdown(msg.Chat.ID, helpText)
	case text == "/new":
		b.handleNewConversation(msg)
	case text == "/cancel":
		b.chatStore.CancelPendingAssistantReply()
		b.sendMarkdown(msg.Chat.ID, "🛑 Stopped the current reply.")
	case text == "/week" || strings.HasPrefix(text, "/week "):
		b.handleWeekRequest(msg)
	case text == "/cooked" || strings.HasPrefix(text, "/cooked "):
		b.handleCookedRequest(msg)
	case text == "/recipes" || strings.HasPrefix(text, "/recipes "):
		b.handleRecipesRequest(msg)
	case text == "/metrics":
		b.handleMetricsRequest(msg)
	case strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://"):
		b.handleClipperRequest(msg)
	default:
		b.handleChatRequest(msg)
	}
}

const helpText = `🥗 *Mealboard*

Just talk to me to plan meals ("what should we cook on Thursday?").

• /week — show this week's plan
• /cooked [meal] — mark today's meal cooked (default: dinner)
• /recipes [query] — search your recipe collection
• /new — start a fresh conversation
• /cancel — stop the current reply
• paste a URL to clip the recipe from it`

// handleChatRequest streams one assistant reply into a progressively
// edited Telegram message.
func (b *Bot) handleChatRequest(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), streamTimeout)
	defer cancel()

	// Restore this chat's thread before sending into it.
	if bound, err := b.sessions.ConversationFor(ctx, msg.Chat.ID); err == nil && bound != "" {
		if bound != b.chatStore.ActiveConversationID() {
			if err := b.chatStore.SwitchConversation(ctx, bound); err != nil {
				log.Printf("Failed to switch to bound conversation %s: %v", bound, err)
			}
		}
	}

	sent, err := b.sendMarkdown(msg.Chat.ID, "💬 _Thinking..._")
	if err != nil {
		log.Printf("Failed to send initial reply: %v", err)
		return
	}

	b.chatStore.SendMessage(ctx, msg.Text)

	lastShown := ""
	ticker := time.NewTicker(editInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.chatStore.CancelPendingAssistantReply()
			b.editMarkdown(msg.Chat.ID, sent.MessageID, lastShown+"\n\n⌛ _Reply timed out._")
			return
		case <-ticker.C:
		}

		display, streaming := b.replyView()
		if display != "" && display != lastShown {
			b.editMarkdown(msg.Chat.ID, sent.MessageID, display)
			lastShown = display
		}

		if !streaming && !b.chatStore.Sending() {
			if display == "" {
				if errText := b.chatStore.Err(); errText != "" {
					b.editMarkdown(msg.Chat.ID, sent.MessageID, "❌ "+escapeError(fmt.Errorf("%s", errText)))
				}
			}
			break
		}
	}

	if convID := b.chatStore.ActiveConversationID(); convID != "" {
		if err := b.sessions.Bind(context.Background(), msg.Chat.ID, convID); err != nil {
			log.Printf("Failed to bind chat %d to conversation %s: %v", msg.Chat.ID, convID, err)
		}
	}
}

// replyView renders the latest assistant message of the active
// conversation: streamed text, or the current status line while no text
// has arrived yet.
func (b *Bot) replyView() (display string, streaming bool) {
	convID := b.chatStore.ActiveConversationID()
	if convID == "" {
		return "", false
	}

	msgs := b.chatStore.Messages(convID)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != chat.RoleAssistant {
			continue
		}
		m := msgs[i]
		text := m.Text()
		if text == "" && m.StatusText != "" {
			text = "⏳ _" + m.StatusText + "_"
		}
		return text, m.IsStreaming
	}
	return "", false
}

func (b *Bot) handleNewConversation(msg *tgbotapi.Message) {
	id := b.chatStore.StartConversation()
	if err := b.sessions.Bind(context.Background(), msg.Chat.ID, id); err != nil {
		log.Printf("Failed to bind chat %d to conversation %s: %v", msg.Chat.ID, id, err)
	}
	b.sendMarkdown(msg.Chat.ID, "🆕 Fresh conversation started. What are we cooking?")
}

func (b *Bot) handleWeekRequest(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	weekStart := mealplan.WeekStart(time.Now()).Format(mealplan.DateFormat)
	if err := b.planStore.LoadWeek(ctx, weekStart); err != nil {
		b.sendMarkdown(msg.Chat.ID, "❌ *Couldn't load the week:*\n```\n"+escapeError(err)+"\n```")
		return
	}

	week := b.planStore.Week()
	b.sendMarkdown(msg.Chat.ID, formatWeekMarkdown(week, b.recipeTitle))
}

// handleCookedRequest marks today's entry of the given meal type (dinner
// when omitted) as cooked.
func (b *Bot) handleCookedRequest(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mealType := mealplan.MealDinner
	if arg := strings.TrimSpace(strings.TrimPrefix(msg.Text, "/cooked")); arg != "" {
		mealType = mealplan.MealType(strings.ToLower(arg))
	}

	today := time.Now().Format(mealplan.DateFormat)
	weekStart := mealplan.WeekStart(time.Now()).Format(mealplan.DateFormat)
	if b.planStore.Week() == nil {
		if err := b.planStore.LoadWeek(ctx, weekStart); err != nil {
			b.sendMarkdown(msg.Chat.ID, "❌ *Couldn't load the week:*\n```\n"+escapeError(err)+"\n```")
			return
		}
	}

	var target *mealplan.MealEntry
	for _, day := range b.planStore.Week().Days {
		if day.Date != today {
			continue
		}
		for i := range day.Entries {
			if day.Entries[i].MealType == mealType && !day.Entries[i].WasCooked {
				target = &day.Entries[i]
				break
			}
		}
	}
	if target == nil {
		b.sendMarkdown(msg.Chat.ID, fmt.Sprintf("🤷 Nothing uncooked planned for %s today.", mealType))
		return
	}

	if err := b.planStore.MarkCooked(ctx, target.ID, nil); err != nil {
		b.sendMarkdown(msg.Chat.ID, "❌ *Couldn't mark it cooked:*\n```\n"+escapeError(err)+"\n```")
		return
	}
	b.sendMarkdown(msg.Chat.ID, fmt.Sprintf("✅ %s marked as cooked. Enjoy!", capitalize(string(mealType))))
}

func (b *Bot) handleRecipesRequest(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := strings.TrimSpace(strings.TrimPrefix(msg.Text, "/recipes"))
	recipes, err := b.recipes.Search(ctx, query, 15)
	if err != nil {
		b.sendMarkdown(msg.Chat.ID, "❌ *Couldn't search recipes:*\n```\n"+escapeError(err)+"\n```")
		return
	}
	b.sendMarkdown(msg.Chat.ID, formatRecipeList(recipes))
}

func (b *Bot) handleMetricsRequest(msg *tgbotapi.Message) {
	if msg.From.ID != b.cfg.AdminTelegramID {
		b.sendMarkdown(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
		return
	}

	usage, err := b.metricsStore.GetDailyUsage(7)
	if err != nil {
		b.sendMarkdown(msg.Chat.ID, "❌ Error fetching metrics.")
		return
	}
	health := metrics.GetSysHealth("data")
	b.sendMarkdown(msg.Chat.ID, formatUsageReport(usage, health))
}

func (b *Bot) handleClipperRequest(msg *tgbotapi.Message) {
	sent, err := b.sendMarkdown(msg.Chat.ID, "✂️ *Clipping recipe...*\n(Extracting and saving to your collection)")
	if err != nil {
		log.Printf("Failed to send initial reply: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rec, err := b.clipper.ClipURL(ctx, msg.Text)
	if err != nil {
		log.Printf("Error clipping recipe: %v", err)
		b.editMarkdown(msg.Chat.ID, sent.MessageID, "❌ *Error clipping recipe:*\n```\n"+escapeError(err)+"\n```")
		return
	}

	b.editMarkdown(msg.Chat.ID, sent.MessageID,
		fmt.Sprintf("✅ *Recipe Saved!*\n\n*Title:* %s\n*Source:* %s", rec.Title, rec.SourceURL))
}

func (b *Bot) recipeTitle(recipeID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rec, err := b.recipes.Get(ctx, recipeID)
	if err != nil || rec == nil {
		return ""
	}
	return rec.Title
}

func (b *Bot) sendMarkdown(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	return b.api.Send(msg)
}

func (b *Bot) editMarkdown(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = "Markdown"
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Failed to edit message %d: %v", messageID, err)
	}
}
