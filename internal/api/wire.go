package api

import (
	"time"

	"mealboard/internal/chat"
	"mealboard/internal/mealplan"
	"mealboard/internal/recipe"
)

// The server wraps every payload in a single-key envelope, so each call
// site decodes into one of the structs below. Field-level shapes are the
// domain types themselves; their snake_case tags are the wire contract.

type conversationsResponse struct {
	Conversations []chat.Conversation `json:"conversations"`
}

type messagesResponse struct {
	Messages []chat.Message `json:"messages"`
}

type mealPlanResponse struct {
	MealPlan *mealplan.WeeklyMealPlan `json:"meal_plan"`
}

type entryResponse struct {
	Entry *mealplan.MealEntry `json:"entry"`
}

type recipeRequest struct {
	Recipe recipe.Recipe `json:"recipe"`
}

type recipeResponse struct {
	Recipe *recipe.Recipe `json:"recipe"`
}

type recipesResponse struct {
	Recipes []recipe.Recipe `json:"recipes"`
}

type markCookedRequest struct {
	CookedAt *time.Time `json:"cooked_at,omitempty"`
}

// sendMessageRequest opens a chat stream. TitleHint seeds the title of a
// conversation the server has not seen yet.
type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	TitleHint      string `json:"title_hint,omitempty"`
}
