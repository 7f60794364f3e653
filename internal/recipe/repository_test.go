package recipe

import (
	"context"
	"path/filepath"
	"testing"

	"mealboard/internal/database"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "recipes.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.SQL)
}

func TestSaveAndGet(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	rec := Recipe{
		ID:          "r1",
		Title:       "Lentil Soup",
		Ingredients: []string{"200g red lentils", "1 onion"},
		Steps:       []string{"Chop.", "Simmer."},
		Tags:        []string{"soup"},
	}
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := repo.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.Title != "Lentil Soup" || len(got.Ingredients) != 2 {
		t.Errorf("Unexpected recipe: %+v", got)
	}

	// Saving again replaces, not duplicates.
	rec.Title = "Red Lentil Soup"
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}
	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 recipe after upsert, got %d", count)
	}
	if got, _ = repo.Get(ctx, "r1"); got.Title != "Red Lentil Soup" {
		t.Errorf("Expected updated title, got %q", got.Title)
	}
}

func TestGetMissing(t *testing.T) {
	repo := testRepo(t)

	got, err := repo.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing recipe, got %+v", got)
	}
}

func TestSearchByTitle(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for _, r := range []Recipe{
		{ID: "r1", Title: "Lentil Soup"},
		{ID: "r2", Title: "Chicken Soup"},
		{ID: "r3", Title: "Pancakes"},
	} {
		if err := repo.Save(ctx, r); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	soups, err := repo.Search(ctx, "soup", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(soups) != 2 {
		t.Errorf("Expected 2 soups, got %d", len(soups))
	}

	all, err := repo.Search(ctx, "", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected all recipes for empty query, got %d", len(all))
	}
}

func TestReplaceAll(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.Save(ctx, Recipe{ID: "old", Title: "Old"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := repo.ReplaceAll(ctx, []Recipe{
		{ID: "r1", Title: "Fresh One"},
		{ID: "r2", Title: "Fresh Two"},
	}); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	if got, _ := repo.Get(ctx, "old"); got != nil {
		t.Error("Expected stale recipe removed")
	}
	count, _ := repo.Count(ctx)
	if count != 2 {
		t.Errorf("Expected 2 recipes after sync, got %d", count)
	}
}
