package clipper

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"mealboard/internal/recipe"

	"github.com/PuerkitoBio/goquery"
)

// Creator uploads a clipped recipe to the remote collection.
type Creator interface {
	CreateRecipe(ctx context.Context, rec recipe.Recipe) (*recipe.Recipe, error)
}

// Cache stores the created recipe locally; may be nil.
type Cache interface {
	Save(ctx context.Context, rec recipe.Recipe) error
}

// Clipper imports recipes from arbitrary URLs. Extraction prefers the
// page's schema.org Recipe JSON-LD; pages without structured data fall
// back to a best-effort scrape of common markup.
type Clipper struct {
	httpClient *http.Client
	creator    Creator
	cache      Cache
}

// NewClipper creates a Clipper instance.
func NewClipper(creator Creator, cache Cache) *Clipper {
	return &Clipper{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		creator:    creator,
		cache:      cache,
	}
}

// ClipURL fetches the URL, extracts the recipe and saves it through the
// remote API, caching the stored copy locally.
func (c *Clipper) ClipURL(ctx context.Context, url string) (*recipe.Recipe, error) {
	doc, err := c.fetchDocument(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content: %w", err)
	}

	extracted := extractJSONLD(doc)
	if extracted == nil {
		extracted = extractFallback(doc)
	}
	if extracted == nil || extracted.Title == "" {
		return nil, fmt.Errorf("no recipe found at %s", url)
	}
	extracted.SourceURL = url

	created, err := c.creator.CreateRecipe(ctx, *extracted)
	if err != nil {
		return nil, fmt.Errorf("failed to save recipe: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.Save(ctx, *created); err != nil {
			// The remote copy exists; a cold cache just means a later sync.
			log.Printf("Warning: failed to cache clipped recipe %s: %v", created.ID, err)
		}
	}
	return created, nil
}

func (c *Clipper) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// ldRecipe mirrors the schema.org Recipe fields we care about. Several
// fields appear as either a single value or a list in the wild, so they
// decode through json.RawMessage.
type ldRecipe struct {
	Type               json.RawMessage `json:"@type"`
	Graph              []ldRecipe      `json:"@graph"`
	Name               string          `json:"name"`
	RecipeIngredient   []string        `json:"recipeIngredient"`
	RecipeInstructions json.RawMessage `json:"recipeInstructions"`
	TotalTime          string          `json:"totalTime"`
	PrepTime           string          `json:"prepTime"`
	RecipeYield        json.RawMessage `json:"recipeYield"`
	Keywords           json.RawMessage `json:"keywords"`
}

// extractJSONLD scans ld+json script blocks for a schema.org Recipe.
func extractJSONLD(doc *goquery.Document) *recipe.Recipe {
	var found *recipe.Recipe
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}

		// Top level may be an object, a list, or a @graph wrapper.
		var candidates []ldRecipe
		var single ldRecipe
		if err := json.Unmarshal([]byte(raw), &single); err == nil {
			candidates = append(candidates, single)
			candidates = append(candidates, single.Graph...)
		} else {
			var list []ldRecipe
			if err := json.Unmarshal([]byte(raw), &list); err != nil {
				return true
			}
			candidates = list
		}

		for _, cand := range candidates {
			if !isRecipeType(cand.Type) || cand.Name == "" {
				continue
			}
			found = &recipe.Recipe{
				Title:       cand.Name,
				Ingredients: cand.RecipeIngredient,
				Steps:       parseInstructions(cand.RecipeInstructions),
				PrepTime:    firstNonEmpty(cand.PrepTime, cand.TotalTime),
				Servings:    parseYield(cand.RecipeYield),
				Tags:        parseKeywords(cand.Keywords),
			}
			return false
		}
		return true
	})
	return found
}

func isRecipeType(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return one == "Recipe"
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, t := range many {
			if t == "Recipe" {
				return true
			}
		}
	}
	return false
}

// parseInstructions flattens recipeInstructions: plain strings, HowToStep
// objects and HowToSection groups all occur in real pages.
func parseInstructions(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return splitLines(asString)
	}

	type step struct {
		Text            string          `json:"text"`
		Name            string          `json:"name"`
		ItemListElement json.RawMessage `json:"itemListElement"`
	}
	var steps []json.RawMessage
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil
	}

	var out []string
	for _, s := range steps {
		var plain string
		if err := json.Unmarshal(s, &plain); err == nil {
			if plain = strings.TrimSpace(plain); plain != "" {
				out = append(out, plain)
			}
			continue
		}
		var st step
		if err := json.Unmarshal(s, &st); err != nil {
			continue
		}
		if len(st.ItemListElement) > 0 {
			out = append(out, parseInstructions(st.ItemListElement)...)
			continue
		}
		if text := strings.TrimSpace(firstNonEmpty(st.Text, st.Name)); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func parseYield(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return fmt.Sprintf("%g", asNumber)
	}
	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil && len(asList) > 0 {
		return asList[0]
	}
	return ""
}

func parseKeywords(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		var tags []string
		for _, t := range strings.Split(asString, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		return tags
	}
	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		return asList
	}
	return nil
}

// extractFallback scrapes common recipe markup when no structured data
// is present. Noise elements are stripped first.
func extractFallback(doc *goquery.Document) *recipe.Recipe {
	doc.Find("script, style, nav, footer, iframe, ads, .ads, #ads").Each(func(_ int, s *goquery.Selection) {
		s.Remove()
	})

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		return nil
	}

	var ingredients []string
	doc.Find(`[class*="ingredient"] li, li[class*="ingredient"]`).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			ingredients = append(ingredients, text)
		}
	})

	var steps []string
	doc.Find(`[class*="instruction"] li, [class*="direction"] li`).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			steps = append(steps, text)
		}
	})

	return &recipe.Recipe{Title: title, Ingredients: ingredients, Steps: steps}
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
