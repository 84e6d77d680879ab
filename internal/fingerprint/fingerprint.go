// Package fingerprint derives deterministic cache keys for assistant queries.
//
// Key format: kind + ":" + SHA-256(canonical JSON of kind, model, normalized
// prompt, normalized ingredients, normalized recipe context)
//
// Two queries that differ only in whitespace, letter case, or the order and
// duplication of their ingredient list map to the same fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Kind identifies the type of assistant query. Only the stateless kinds
// (suggestions, substitutions) are cacheable; conversational kinds carry
// multi-turn state and must always reach the network.
type Kind string

const (
	KindSuggestions   Kind = "suggestions"
	KindSubstitutions Kind = "substitutions"
	KindAssist        Kind = "assist"
	KindChat          Kind = "chat"
)

// Cacheable reports whether responses to this kind of query may be cached.
func (k Kind) Cacheable() bool {
	return k == KindSuggestions || k == KindSubstitutions
}

// Valid reports whether k is one of the recognised query kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSuggestions, KindSubstitutions, KindAssist, KindChat:
		return true
	}
	return false
}

// Input holds the semantically relevant fields of a query. Fields that do
// not affect the answer (request ID, callback wiring) are deliberately
// absent.
type Input struct {
	Kind        Kind
	Model       string
	Prompt      string
	Ingredients []string
	RecipeName  string
	RecipeStep  string
}

// Key returns the fingerprint for in. The kind prefix keeps the key space
// partitioned so that a suggestions entry can never collide with a
// substitutions entry for the same text.
func Key(in Input) string {
	payload := struct {
		K  string   `json:"k"`
		M  string   `json:"m"`
		P  string   `json:"p"`
		I  []string `json:"i,omitempty"`
		RN string   `json:"rn,omitempty"`
		RS string   `json:"rs,omitempty"`
	}{
		K:  string(in.Kind),
		M:  NormalizeText(in.Model),
		P:  NormalizeText(in.Prompt),
		I:  NormalizeIngredients(in.Ingredients),
		RN: NormalizeText(in.RecipeName),
		RS: NormalizeText(in.RecipeStep),
	}

	data, _ := json.Marshal(payload)
	h := sha256.Sum256(data)
	return string(in.Kind) + ":" + hex.EncodeToString(h[:])
}

// NormalizeText trims, case-folds, and collapses internal whitespace runs to
// a single space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizeIngredients normalizes each entry, drops empties, de-duplicates,
// and sorts so that ordering never affects the fingerprint. The input slice
// is not modified.
func NormalizeIngredients(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, ing := range raw {
		n := NormalizeText(ing)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}

	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
