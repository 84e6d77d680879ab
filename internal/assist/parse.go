package assist

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/dishdazzle/assistant/internal/fingerprint"
)

// Models frequently wrap JSON in markdown fences or surround it with prose.
// These patterns pull the first plausible object out of mixed text.
var (
	recipesPattern       = regexp.MustCompile(`(?s)\{\s*"recipes"\s*:\s*\[.+?\]\s*\}`)
	substitutionsPattern = regexp.MustCompile(`(?s)\{\s*"substitutions"\s*:\s*\[.+?\]\s*\}`)
)

type recipesEnvelope struct {
	Recipes []Recipe `json:"recipes"`
}

type substitutionsEnvelope struct {
	Substitutions []Substitution `json:"substitutions"`
}

// parseInto fills the structured fields of res from the raw model output.
// Chat-style kinds are delivered verbatim. For structured kinds the raw
// text is always preserved; if no usable JSON can be extracted the result
// is flagged Unparsed instead of failing the request.
func parseInto(res *Result, kind fingerprint.Kind, raw string) {
	res.Raw = raw

	switch kind {
	case fingerprint.KindSuggestions:
		var env recipesEnvelope
		if tryDecode(raw, recipesPattern, &env) && len(env.Recipes) > 0 {
			res.Recipes = env.Recipes
			return
		}
		res.Unparsed = true

	case fingerprint.KindSubstitutions:
		var env substitutionsEnvelope
		if tryDecode(raw, substitutionsPattern, &env) && len(env.Substitutions) > 0 {
			res.Substitutions = env.Substitutions
			return
		}
		res.Unparsed = true
	}
}

// tryDecode attempts a strict decode of the whole payload first, then falls
// back to regex extraction of the expected object.
func tryDecode(raw string, pattern *regexp.Regexp, v any) bool {
	text := stripFences(raw)
	if json.Unmarshal([]byte(text), v) == nil {
		return true
	}
	if m := pattern.FindString(text); m != "" {
		if json.Unmarshal([]byte(m), v) == nil {
			return true
		}
	}
	return false
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	// Drop the optional language tag on the opening fence.
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		first := strings.TrimSpace(t[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}") {
			t = t[i+1:]
		}
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
