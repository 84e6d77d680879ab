// Package store persists the user's recipe box in SQLite: saved recipes,
// favorites, the pantry, the grocery list, and chat history.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS recipes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT,
	ingredients TEXT NOT NULL,
	instructions TEXT NOT NULL,
	cooking_time INTEGER,
	difficulty TEXT CHECK(difficulty IN ('Easy', 'Medium', 'Hard')),
	image_url TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS favorites (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recipe_id INTEGER NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (recipe_id) REFERENCES recipes (id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS pantry (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ingredients TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS grocery_list (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	items TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chat_history_conversation
	ON chat_history (conversation_id, id);
`

// Recipe is a saved recipe. Ingredients and Instructions round-trip
// through JSON columns.
type Recipe struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []string     `json:"instructions"`
	CookingTime  int          `json:"cooking_time,omitempty"`
	Difficulty   string       `json:"difficulty,omitempty"`
	ImageURL     string       `json:"image_url,omitempty"`
	Favorite     bool         `json:"favorite"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Ingredient is one line of a saved recipe.
type Ingredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount,omitempty"`
}

// ChatMessage is one persisted conversation turn.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps the SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const recipeColumns = `r.id, r.name, r.description, r.ingredients, r.instructions,
	r.cooking_time, r.difficulty, r.image_url, r.created_at,
	EXISTS(SELECT 1 FROM favorites f WHERE f.recipe_id = r.id)`

// ListRecipes returns all saved recipes ordered by name.
func (s *Store) ListRecipes(ctx context.Context) ([]Recipe, error) {
	return s.queryRecipes(ctx,
		"SELECT "+recipeColumns+" FROM recipes r ORDER BY r.name")
}

// SearchRecipes matches q case-insensitively against recipe names and
// descriptions.
func (s *Store) SearchRecipes(ctx context.Context, q string) ([]Recipe, error) {
	term := "%" + q + "%"
	return s.queryRecipes(ctx,
		"SELECT "+recipeColumns+" FROM recipes r WHERE r.name LIKE ? OR r.description LIKE ? ORDER BY r.name",
		term, term)
}

// ListFavorites returns favorited recipes, most recently favorited first.
func (s *Store) ListFavorites(ctx context.Context) ([]Recipe, error) {
	return s.queryRecipes(ctx,
		"SELECT "+recipeColumns+
			" FROM recipes r JOIN favorites f ON f.recipe_id = r.id ORDER BY f.created_at DESC")
}

// GetRecipe fetches one recipe by ID.
func (s *Store) GetRecipe(ctx context.Context, id int64) (*Recipe, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recipeColumns+" FROM recipes r WHERE r.id = ?", id)
	r, err := scanRecipe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// AddRecipe inserts a recipe and returns its assigned ID.
func (s *Store) AddRecipe(ctx context.Context, r *Recipe) (int64, error) {
	ingredients, err := json.Marshal(r.Ingredients)
	if err != nil {
		return 0, fmt.Errorf("store: encode ingredients: %w", err)
	}
	instructions, err := json.Marshal(r.Instructions)
	if err != nil {
		return 0, fmt.Errorf("store: encode instructions: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO recipes (name, description, ingredients, instructions, cooking_time, difficulty, image_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.Description, string(ingredients), string(instructions),
		r.CookingTime, nullable(r.Difficulty), r.ImageURL,
	)
	if err != nil {
		return 0, fmt.Errorf("store: add recipe: %w", err)
	}
	return res.LastInsertId()
}

// UpdateRecipe replaces a recipe's fields.
func (s *Store) UpdateRecipe(ctx context.Context, r *Recipe) error {
	ingredients, err := json.Marshal(r.Ingredients)
	if err != nil {
		return fmt.Errorf("store: encode ingredients: %w", err)
	}
	instructions, err := json.Marshal(r.Instructions)
	if err != nil {
		return fmt.Errorf("store: encode instructions: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE recipes SET name = ?, description = ?, ingredients = ?, instructions = ?,
		 cooking_time = ?, difficulty = ?, image_url = ? WHERE id = ?`,
		r.Name, r.Description, string(ingredients), string(instructions),
		r.CookingTime, nullable(r.Difficulty), r.ImageURL, r.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update recipe: %w", err)
	}
	return requireRow(res)
}

// DeleteRecipe removes a recipe; favorites rows cascade.
func (s *Store) DeleteRecipe(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recipes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete recipe: %w", err)
	}
	return requireRow(res)
}

// Favorite marks a recipe as a favorite. Returns false if it already was.
func (s *Store) Favorite(ctx context.Context, recipeID int64) (bool, error) {
	if _, err := s.GetRecipe(ctx, recipeID); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO favorites (recipe_id) VALUES (?)", recipeID)
	if err != nil {
		return false, fmt.Errorf("store: favorite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Unfavorite removes a recipe from favorites. Returns false if it wasn't one.
func (s *Store) Unfavorite(ctx context.Context, recipeID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM favorites WHERE recipe_id = ?", recipeID)
	if err != nil {
		return false, fmt.Errorf("store: unfavorite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Pantry returns the current pantry contents. A missing pantry row is
// treated as empty.
func (s *Store) Pantry(ctx context.Context) ([]string, error) {
	return s.singletonList(ctx, "SELECT ingredients FROM pantry LIMIT 1")
}

// SetPantry replaces the pantry contents.
func (s *Store) SetPantry(ctx context.Context, ingredients []string) error {
	return s.setSingletonList(ctx, "pantry", "ingredients", ingredients)
}

// GroceryList returns the current grocery list.
func (s *Store) GroceryList(ctx context.Context) ([]string, error) {
	return s.singletonList(ctx, "SELECT items FROM grocery_list LIMIT 1")
}

// SetGroceryList replaces the grocery list.
func (s *Store) SetGroceryList(ctx context.Context, items []string) error {
	return s.setSingletonList(ctx, "grocery_list", "items", items)
}

// AppendChat appends one message to a conversation.
func (s *Store) AppendChat(ctx context.Context, conversationID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_history (conversation_id, role, content) VALUES (?, ?, ?)",
		conversationID, role, content)
	if err != nil {
		return fmt.Errorf("store: append chat: %w", err)
	}
	return nil
}

// ChatHistory returns a conversation's messages in insertion order.
func (s *Store) ChatHistory(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, created_at FROM chat_history WHERE conversation_id = ? ORDER BY id",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: chat history: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ClearChat deletes a conversation.
func (s *Store) ClearChat(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM chat_history WHERE conversation_id = ?", conversationID)
	if err != nil {
		return fmt.Errorf("store: clear chat: %w", err)
	}
	return nil
}

func (s *Store) queryRecipes(ctx context.Context, query string, args ...any) ([]Recipe, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query recipes: %w", err)
	}
	defer rows.Close()

	var out []Recipe
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecipe(row scanner) (*Recipe, error) {
	var (
		r            Recipe
		description  sql.NullString
		ingredients  string
		instructions string
		cookingTime  sql.NullInt64
		difficulty   sql.NullString
		imageURL     sql.NullString
	)
	err := row.Scan(&r.ID, &r.Name, &description, &ingredients, &instructions,
		&cookingTime, &difficulty, &imageURL, &r.CreatedAt, &r.Favorite)
	if err != nil {
		return nil, err
	}
	r.Description = description.String
	r.CookingTime = int(cookingTime.Int64)
	r.Difficulty = difficulty.String
	r.ImageURL = imageURL.String
	if err := json.Unmarshal([]byte(ingredients), &r.Ingredients); err != nil {
		return nil, fmt.Errorf("store: decode ingredients for recipe %d: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(instructions), &r.Instructions); err != nil {
		return nil, fmt.Errorf("store: decode instructions for recipe %d: %w", r.ID, err)
	}
	return &r, nil
}

func (s *Store) singletonList(ctx context.Context, query string) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, query).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read list: %w", err)
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("store: decode list: %w", err)
	}
	return items, nil
}

func (s *Store) setSingletonList(ctx context.Context, table, column string, items []string) error {
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("store: encode list: %w", err)
	}

	// Single-user app: the table holds at most one row.
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET "+column+" = ?, updated_at = CURRENT_TIMESTAMP WHERE id = (SELECT id FROM "+table+" LIMIT 1)",
		string(raw))
	if err != nil {
		return fmt.Errorf("store: update %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO "+table+" ("+column+") VALUES (?)", string(raw))
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", table, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
