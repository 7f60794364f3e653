package clipper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"mealboard/internal/recipe"
)

type fakeCreator struct {
	created []recipe.Recipe
	err     error
}

func (f *fakeCreator) CreateRecipe(ctx context.Context, rec recipe.Recipe) (*recipe.Recipe, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, rec)
	stored := rec
	stored.ID = "srv-r1"
	return &stored, nil
}

type fakeCache struct {
	saved []recipe.Recipe
}

func (f *fakeCache) Save(ctx context.Context, rec recipe.Recipe) error {
	f.saved = append(f.saved, rec)
	return nil
}

func servePage(t *testing.T, html string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, html)
	}))
	t.Cleanup(server.Close)
	return server
}

const jsonLDPage = `<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Recipe",
  "name": "Lentil Soup",
  "recipeIngredient": ["200g red lentils", "1 onion"],
  "recipeInstructions": [
    {"@type": "HowToStep", "text": "Chop the onion."},
    {"@type": "HowToStep", "text": "Simmer everything for 25 minutes."}
  ],
  "prepTime": "PT10M",
  "recipeYield": "4 servings",
  "keywords": "soup, vegan"
}
</script>
</head><body><h1>Something else entirely</h1></body></html>`

func TestClipURLFromJSONLD(t *testing.T) {
	server := servePage(t, jsonLDPage)
	creator := &fakeCreator{}
	cache := &fakeCache{}

	rec, err := NewClipper(creator, cache).ClipURL(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("ClipURL failed: %v", err)
	}

	if rec.ID != "srv-r1" || rec.Title != "Lentil Soup" {
		t.Errorf("Unexpected recipe: %+v", rec)
	}
	if len(rec.Ingredients) != 2 || rec.Ingredients[0] != "200g red lentils" {
		t.Errorf("Unexpected ingredients: %v", rec.Ingredients)
	}
	if len(rec.Steps) != 2 || rec.Steps[1] != "Simmer everything for 25 minutes." {
		t.Errorf("Unexpected steps: %v", rec.Steps)
	}
	if rec.PrepTime != "PT10M" || rec.Servings != "4 servings" {
		t.Errorf("Unexpected prep/servings: %q %q", rec.PrepTime, rec.Servings)
	}
	if len(rec.Tags) != 2 || rec.Tags[0] != "soup" || rec.Tags[1] != "vegan" {
		t.Errorf("Unexpected tags: %v", rec.Tags)
	}

	if len(creator.created) != 1 || creator.created[0].SourceURL != server.URL {
		t.Errorf("Expected one create with source URL, got %+v", creator.created)
	}
	if len(cache.saved) != 1 || cache.saved[0].ID != "srv-r1" {
		t.Errorf("Expected stored copy cached, got %+v", cache.saved)
	}
}

const graphPage = `<html><head>
<script type="application/ld+json">
{
  "@graph": [
    {"@type": "WebPage", "name": "Some page"},
    {"@type": ["Recipe", "NewsArticle"], "name": "Shakshuka",
     "recipeIngredient": ["6 eggs"],
     "recipeInstructions": ["Make the sauce.", "Crack in the eggs."],
     "recipeYield": 3}
  ]
}
</script>
</head><body></body></html>`

func TestClipURLFromGraphWrapper(t *testing.T) {
	server := servePage(t, graphPage)
	creator := &fakeCreator{}

	rec, err := NewClipper(creator, nil).ClipURL(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("ClipURL failed: %v", err)
	}
	if rec.Title != "Shakshuka" || rec.Servings != "3" {
		t.Errorf("Unexpected recipe: %+v", rec)
	}
	if len(rec.Steps) != 2 || rec.Steps[0] != "Make the sauce." {
		t.Errorf("Unexpected steps: %v", rec.Steps)
	}
}

const fallbackPage = `<html><head><title>ignored</title></head><body>
<script>var noise = true;</script>
<h1>Grandma's Pancakes</h1>
<div class="recipe-ingredients"><ul>
  <li>2 cups flour</li>
  <li>2 eggs</li>
</ul></div>
<div class="instructions"><ol>
  <li>Mix everything.</li>
  <li>Fry in butter.</li>
</ol></div>
</body></html>`

func TestClipURLFallbackScrape(t *testing.T) {
	server := servePage(t, fallbackPage)
	creator := &fakeCreator{}

	rec, err := NewClipper(creator, nil).ClipURL(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("ClipURL failed: %v", err)
	}
	if rec.Title != "Grandma's Pancakes" {
		t.Errorf("Unexpected title: %q", rec.Title)
	}
	if len(rec.Ingredients) != 2 || rec.Ingredients[1] != "2 eggs" {
		t.Errorf("Unexpected ingredients: %v", rec.Ingredients)
	}
	if len(rec.Steps) != 2 || rec.Steps[1] != "Fry in butter." {
		t.Errorf("Unexpected steps: %v", rec.Steps)
	}
}

func TestClipURLNoRecipe(t *testing.T) {
	server := servePage(t, `<html><body><p>just an article</p></body></html>`)

	_, err := NewClipper(&fakeCreator{}, nil).ClipURL(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for page without a recipe")
	}
}

func TestClipURLFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := NewClipper(&fakeCreator{}, nil).ClipURL(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for 404 page")
	}
}

func TestClipURLCreateFailure(t *testing.T) {
	server := servePage(t, jsonLDPage)
	creator := &fakeCreator{err: fmt.Errorf("upstream down")}

	_, err := NewClipper(creator, nil).ClipURL(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected create failure to surface")
	}
}
