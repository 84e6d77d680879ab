package assist

import (
	"testing"

	"github.com/dishdazzle/assistant/internal/fingerprint"
)

func TestParseRecipesPlainJSON(t *testing.T) {
	var res Result
	parseInto(&res, fingerprint.KindSuggestions, recipesJSON)

	if res.Unparsed {
		t.Fatal("plain JSON should parse")
	}
	if len(res.Recipes) != 1 {
		t.Fatalf("recipes = %d, want 1", len(res.Recipes))
	}
	r := res.Recipes[0]
	if r.Name != "Tomato Pasta" || r.Difficulty != "Easy" || len(r.Instructions) != 2 {
		t.Errorf("unexpected recipe: %+v", r)
	}
	if len(r.Ingredients) != 1 || !r.Ingredients[0].Available {
		t.Errorf("unexpected ingredients: %+v", r.Ingredients)
	}
}

func TestParseRecipesMarkdownFence(t *testing.T) {
	raw := "```json\n" + recipesJSON + "\n```"
	var res Result
	parseInto(&res, fingerprint.KindSuggestions, raw)

	if res.Unparsed {
		t.Fatal("fenced JSON should parse")
	}
	if len(res.Recipes) != 1 {
		t.Errorf("recipes = %d, want 1", len(res.Recipes))
	}
	if res.Raw != raw {
		t.Error("Raw must preserve the original response text")
	}
}

func TestParseRecipesSurroundedByProse(t *testing.T) {
	raw := "Here are some ideas for you!\n\n" + recipesJSON + "\n\nEnjoy your meal!"
	var res Result
	parseInto(&res, fingerprint.KindSuggestions, raw)

	if res.Unparsed {
		t.Fatal("embedded JSON should be extracted")
	}
	if len(res.Recipes) != 1 || res.Recipes[0].Name != "Tomato Pasta" {
		t.Errorf("unexpected recipes: %+v", res.Recipes)
	}
}

func TestParseSubstitutions(t *testing.T) {
	raw := `Some options: {"substitutions": [{"name": "Greek yogurt", "ratio": "1:1", "notes": "Tangier"}, ` +
		`{"name": "Silken tofu", "ratio": "use half as much", "notes": "Neutral flavor"}]}`
	var res Result
	parseInto(&res, fingerprint.KindSubstitutions, raw)

	if res.Unparsed {
		t.Fatal("substitutions JSON should be extracted")
	}
	if len(res.Substitutions) != 2 {
		t.Fatalf("substitutions = %d, want 2", len(res.Substitutions))
	}
	if res.Substitutions[0].Name != "Greek yogurt" || res.Substitutions[1].Ratio != "use half as much" {
		t.Errorf("unexpected substitutions: %+v", res.Substitutions)
	}
}

func TestParseFailuresFlagged(t *testing.T) {
	tests := []struct {
		name string
		kind fingerprint.Kind
		raw  string
	}{
		{"prose only", fingerprint.KindSuggestions, "I suggest making an omelette."},
		{"truncated JSON", fingerprint.KindSuggestions, `{"recipes": [{"name": "Omelette"`},
		{"empty recipes", fingerprint.KindSuggestions, `{"recipes": []}`},
		{"wrong envelope", fingerprint.KindSubstitutions, `{"recipes": [{"name": "x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res Result
			parseInto(&res, tt.kind, tt.raw)
			if !res.Unparsed {
				t.Error("expected unparsed flag")
			}
			if res.Raw != tt.raw {
				t.Error("Raw must preserve the original text")
			}
		})
	}
}

func TestParseChatPassThrough(t *testing.T) {
	raw := "Use medium heat and be patient."
	var res Result
	parseInto(&res, fingerprint.KindChat, raw)

	if res.Unparsed {
		t.Error("chat responses are never flagged unparsed")
	}
	if res.Raw != raw {
		t.Errorf("Raw = %q, want %q", res.Raw, raw)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
		{"  plain text  ", "plain text"},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseEmptyRecipesEnvelopeFallsBack(t *testing.T) {
	// A prose answer containing an empty envelope still yields the raw text.
	raw := `{"recipes": []} I couldn't think of anything with those ingredients.`
	var res Result
	parseInto(&res, fingerprint.KindSuggestions, raw)
	if !res.Unparsed {
		t.Error("empty recipe list should fall back to raw text")
	}
}
