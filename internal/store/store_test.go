package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecipe() *Recipe {
	return &Recipe{
		Name:        "Pasta Aglio e Olio",
		Description: "A simple, classic Italian pasta dish with garlic and olive oil.",
		Ingredients: []Ingredient{
			{Name: "Spaghetti", Amount: "1 pound"},
			{Name: "Garlic", Amount: "6 cloves, thinly sliced"},
		},
		Instructions: []string{
			"Bring a large pot of salted water to a boil.",
			"Cook spaghetti until al dente.",
		},
		CookingTime: 20,
		Difficulty:  "Easy",
	}
}

func TestRecipeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddRecipe(ctx, sampleRecipe())
	if err != nil {
		t.Fatalf("AddRecipe: %v", err)
	}

	got, err := s.GetRecipe(ctx, id)
	if err != nil {
		t.Fatalf("GetRecipe: %v", err)
	}
	if got.Name != "Pasta Aglio e Olio" || got.Difficulty != "Easy" || got.CookingTime != 20 {
		t.Errorf("unexpected recipe: %+v", got)
	}
	if len(got.Ingredients) != 2 || got.Ingredients[1].Name != "Garlic" {
		t.Errorf("ingredients lost: %+v", got.Ingredients)
	}
	if len(got.Instructions) != 2 {
		t.Errorf("instructions lost: %+v", got.Instructions)
	}
	if got.Favorite {
		t.Error("new recipe should not be a favorite")
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestGetRecipeNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRecipe(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateRecipe(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddRecipe(ctx, sampleRecipe())
	if err != nil {
		t.Fatalf("AddRecipe: %v", err)
	}

	r, _ := s.GetRecipe(ctx, id)
	r.Name = "Garlic Pasta"
	r.Difficulty = "Medium"
	if err := s.UpdateRecipe(ctx, r); err != nil {
		t.Fatalf("UpdateRecipe: %v", err)
	}

	got, _ := s.GetRecipe(ctx, id)
	if got.Name != "Garlic Pasta" || got.Difficulty != "Medium" {
		t.Errorf("update not applied: %+v", got)
	}

	r.ID = 999
	if err := s.UpdateRecipe(ctx, r); !errors.Is(err, ErrNotFound) {
		t.Errorf("updating missing recipe: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRecipeCascadesFavorites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.AddRecipe(ctx, sampleRecipe())
	if _, err := s.Favorite(ctx, id); err != nil {
		t.Fatalf("Favorite: %v", err)
	}
	if err := s.DeleteRecipe(ctx, id); err != nil {
		t.Fatalf("DeleteRecipe: %v", err)
	}

	favs, err := s.ListFavorites(ctx)
	if err != nil {
		t.Fatalf("ListFavorites: %v", err)
	}
	if len(favs) != 0 {
		t.Errorf("favorites not cascaded: %+v", favs)
	}

	if err := s.DeleteRecipe(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: err = %v, want ErrNotFound", err)
	}
}

func TestSearchRecipes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1 := sampleRecipe()
	if _, err := s.AddRecipe(ctx, r1); err != nil {
		t.Fatalf("AddRecipe: %v", err)
	}
	r2 := sampleRecipe()
	r2.Name = "Shakshuka"
	r2.Description = "Eggs poached in spiced tomato sauce."
	if _, err := s.AddRecipe(ctx, r2); err != nil {
		t.Fatalf("AddRecipe: %v", err)
	}

	byName, err := s.SearchRecipes(ctx, "shak")
	if err != nil {
		t.Fatalf("SearchRecipes: %v", err)
	}
	if len(byName) != 1 || byName[0].Name != "Shakshuka" {
		t.Errorf("search by name: %+v", byName)
	}

	byDesc, err := s.SearchRecipes(ctx, "tomato")
	if err != nil {
		t.Fatalf("SearchRecipes: %v", err)
	}
	if len(byDesc) != 1 || byDesc[0].Name != "Shakshuka" {
		t.Errorf("search by description: %+v", byDesc)
	}

	none, err := s.SearchRecipes(ctx, "sushi")
	if err != nil {
		t.Fatalf("SearchRecipes: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no matches: %+v", none)
	}
}

func TestFavoriteIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.AddRecipe(ctx, sampleRecipe())

	added, err := s.Favorite(ctx, id)
	if err != nil || !added {
		t.Fatalf("first Favorite = (%v, %v), want (true, nil)", added, err)
	}
	added, err = s.Favorite(ctx, id)
	if err != nil || added {
		t.Fatalf("second Favorite = (%v, %v), want (false, nil)", added, err)
	}

	got, _ := s.GetRecipe(ctx, id)
	if !got.Favorite {
		t.Error("recipe should report Favorite=true")
	}

	removed, err := s.Unfavorite(ctx, id)
	if err != nil || !removed {
		t.Fatalf("Unfavorite = (%v, %v), want (true, nil)", removed, err)
	}
	removed, err = s.Unfavorite(ctx, id)
	if err != nil || removed {
		t.Fatalf("second Unfavorite = (%v, %v), want (false, nil)", removed, err)
	}
}

func TestFavoriteMissingRecipe(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Favorite(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPantryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.Pantry(ctx)
	if err != nil {
		t.Fatalf("Pantry: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("fresh pantry = %+v, want empty", empty)
	}

	if err := s.SetPantry(ctx, []string{"eggs", "flour"}); err != nil {
		t.Fatalf("SetPantry: %v", err)
	}
	if err := s.SetPantry(ctx, []string{"eggs", "flour", "butter"}); err != nil {
		t.Fatalf("second SetPantry: %v", err)
	}

	got, err := s.Pantry(ctx)
	if err != nil {
		t.Fatalf("Pantry: %v", err)
	}
	if len(got) != 3 || got[2] != "butter" {
		t.Errorf("pantry = %+v", got)
	}
}

func TestGroceryListRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetGroceryList(ctx, []string{"milk"}); err != nil {
		t.Fatalf("SetGroceryList: %v", err)
	}
	got, err := s.GroceryList(ctx)
	if err != nil {
		t.Fatalf("GroceryList: %v", err)
	}
	if len(got) != 1 || got[0] != "milk" {
		t.Errorf("grocery list = %+v", got)
	}

	if err := s.SetGroceryList(ctx, nil); err != nil {
		t.Fatalf("SetGroceryList(nil): %v", err)
	}
	got, _ = s.GroceryList(ctx)
	if len(got) != 0 {
		t.Errorf("cleared grocery list = %+v", got)
	}
}

func TestChatHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const conv = "c1"
	if err := s.AppendChat(ctx, conv, "user", "how do I poach an egg?"); err != nil {
		t.Fatalf("AppendChat: %v", err)
	}
	if err := s.AppendChat(ctx, conv, "assistant", "Simmer water, add vinegar."); err != nil {
		t.Fatalf("AppendChat: %v", err)
	}
	if err := s.AppendChat(ctx, "other", "user", "unrelated"); err != nil {
		t.Fatalf("AppendChat: %v", err)
	}

	msgs, err := s.ChatHistory(ctx, conv)
	if err != nil {
		t.Fatalf("ChatHistory: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("order lost: %+v", msgs)
	}

	if err := s.ClearChat(ctx, conv); err != nil {
		t.Fatalf("ClearChat: %v", err)
	}
	msgs, _ = s.ChatHistory(ctx, conv)
	if len(msgs) != 0 {
		t.Errorf("cleared conversation = %+v", msgs)
	}
	other, _ := s.ChatHistory(ctx, "other")
	if len(other) != 1 {
		t.Errorf("other conversation affected: %+v", other)
	}
}
