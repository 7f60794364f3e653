package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mealboard/internal/chat"
	"mealboard/internal/config"
	"mealboard/internal/mealplan"
	"mealboard/internal/recipe"

	"github.com/golang-jwt/jwt/v5"
)

// Client talks to the hosted mealboard service. It implements chat.API,
// mealplan.API and the recipe sync calls over one authenticated HTTP
// client. Requests carry a short-lived session token minted from the
// configured id:secret API key.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client // no timeout; SSE streams stay open
	baseURL      string
	keyID        string
	secret       []byte

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewClient creates an API client from the configuration.
func NewClient(cfg *config.Config) (*Client, error) {
	parts := strings.Split(cfg.APIKey, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid api key format: expected id:secret")
	}
	secret, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode api key secret: %w", err)
	}

	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
		baseURL:      strings.TrimRight(cfg.APIBaseURL, "/"),
		keyID:        parts[0],
		secret:       secret,
	}, nil
}

// sessionToken returns a valid signed session token, minting a fresh one
// when the cached token is within a minute of expiry.
func (c *Client) sessionToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.tokenExp) > time.Minute {
		return c.token, nil
	}

	exp := time.Now().Add(5 * time.Minute)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
		"aud": "/client/",
	})
	token.Header["kid"] = c.keyID

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	c.token = signed
	c.tokenExp = exp
	return signed, nil
}

// do executes one JSON request. body and out may be nil; non-2xx
// responses become errors carrying the status and response body.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) error {
	token, err := c.sessionToken()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// --- chat.API ---

// FetchConversations lists the account's conversations, most recent first.
func (c *Client) FetchConversations(ctx context.Context) ([]chat.Conversation, error) {
	var resp conversationsResponse
	if err := c.do(ctx, http.MethodGet, "/client/conversations/", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// FetchMessages loads the full message history of one conversation.
func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var resp messagesResponse
	path := fmt.Sprintf("/client/conversations/%s/messages/", url.PathEscape(conversationID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DeleteConversation removes a conversation and its messages server-side.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	path := fmt.Sprintf("/client/conversations/%s/", url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// --- mealplan.API ---

// GetWeeklyMealPlan fetches the authoritative grid for one week.
func (c *Client) GetWeeklyMealPlan(ctx context.Context, weekStartDate string) (*mealplan.WeeklyMealPlan, error) {
	var resp mealPlanResponse
	path := "/client/meal-plan/?week_start_date=" + url.QueryEscape(weekStartDate)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.MealPlan == nil {
		return nil, fmt.Errorf("no meal plan returned from api")
	}
	return resp.MealPlan, nil
}

// CreateMealEntry creates an entry and returns the server's version of it.
func (c *Client) CreateMealEntry(ctx context.Context, input mealplan.CreateEntryInput) (*mealplan.MealEntry, error) {
	var resp entryResponse
	if err := c.do(ctx, http.MethodPost, "/client/meal-entries/", input, &resp); err != nil {
		return nil, err
	}
	if resp.Entry == nil {
		return nil, fmt.Errorf("no entry returned from api")
	}
	return resp.Entry, nil
}

// UpdateMealEntry applies a partial update; unset patch fields are
// omitted from the request entirely.
func (c *Client) UpdateMealEntry(ctx context.Context, id string, patch mealplan.EntryPatch) (*mealplan.MealEntry, error) {
	var resp entryResponse
	path := fmt.Sprintf("/client/meal-entries/%s/", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPatch, path, patch, &resp); err != nil {
		return nil, err
	}
	if resp.Entry == nil {
		return nil, fmt.Errorf("no entry returned from api")
	}
	return resp.Entry, nil
}

// DeleteMealEntry removes an entry server-side.
func (c *Client) DeleteMealEntry(ctx context.Context, id string) error {
	path := fmt.Sprintf("/client/meal-entries/%s/", url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// MarkMealCooked flags an entry as cooked. A nil cookedAt lets the
// server stamp the current time.
func (c *Client) MarkMealCooked(ctx context.Context, id string, cookedAt *time.Time) (*mealplan.MealEntry, error) {
	var resp entryResponse
	path := fmt.Sprintf("/client/meal-entries/%s/cooked/", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, markCookedRequest{CookedAt: cookedAt}, &resp); err != nil {
		return nil, err
	}
	if resp.Entry == nil {
		return nil, fmt.Errorf("no entry returned from api")
	}
	return resp.Entry, nil
}

// --- recipes ---

// CreateRecipe uploads a clipped recipe and returns the stored version.
func (c *Client) CreateRecipe(ctx context.Context, rec recipe.Recipe) (*recipe.Recipe, error) {
	var resp recipeResponse
	if err := c.do(ctx, http.MethodPost, "/client/recipes/", recipeRequest{Recipe: rec}, &resp); err != nil {
		return nil, err
	}
	if resp.Recipe == nil {
		return nil, fmt.Errorf("no recipe returned from api")
	}
	return resp.Recipe, nil
}

// ListRecipes fetches the account's recipe collection.
func (c *Client) ListRecipes(ctx context.Context) ([]recipe.Recipe, error) {
	var resp recipesResponse
	if err := c.do(ctx, http.MethodGet, "/client/recipes/", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Recipes, nil
}
