package assist

import (
	"fmt"
	"strings"

	"github.com/dishdazzle/assistant/internal/fingerprint"
	"github.com/dishdazzle/assistant/internal/openrouter"
)

// Generation parameters per query kind. Structured queries get a larger
// completion budget because the model returns full recipe JSON.
const (
	defaultTemperature  = 0.7
	suggestionMaxTokens = 1500
	defaultMaxTokens    = 800
)

const (
	suggestionsSystem = "You are a helpful cooking assistant that suggests recipes based on available ingredients."

	substitutionsSystem = "You are a helpful cooking assistant that suggests ingredient substitutions."

	assistSystem = "You are a helpful cooking assistant that provides guidance, tips, and answers questions about cooking."

	chatSystem = "You are a helpful cooking assistant that can discuss recipes, cooking techniques, " +
		"ingredients, and other food-related topics. You can also provide general assistance " +
		"with cooking questions and offer tips for meal planning and preparation."
)

const suggestionsPromptTemplate = `I have the following ingredients: %s.
Please suggest 3 recipes I can make with these ingredients.
For each recipe, provide:
1. Recipe name
2. Brief description
3. List of ingredients with amounts (indicate which ones I have and which I need to get)
4. Step-by-step instructions
5. Estimated cooking time
6. Difficulty level (Easy, Medium, or Hard)

Format your response as a JSON object with the following structure:
{"recipes": [{"name": "Recipe Name", "description": "Brief description", "ingredients": [{"name": "Ingredient", "amount": "Amount", "available": true/false}], "instructions": ["Step 1", "Step 2"], "cooking_time": minutes, "difficulty": "Easy/Medium/Hard"}]}`

const substitutionsPromptTemplate = `I don't have %s for my recipe. What are some good substitutions?
Please provide at least 3 substitutions if possible, with the following information for each:
1. Substitute ingredient name
2. Substitution ratio (e.g., "1:1" or "use half as much")
3. Brief note about flavor/texture differences

Format your response as a JSON object with the following structure:
{"substitutions": [{"name": "Substitute Name", "ratio": "Substitution Ratio", "notes": "Notes about differences"}]}`

// buildMessages assembles the outbound conversation for a query. The
// ingredients passed in are already normalized, so identical pantries
// produce identical prompts.
func buildMessages(q *Query, ingredients []string) []openrouter.Message {
	switch q.Kind {
	case fingerprint.KindSuggestions:
		prompt := fmt.Sprintf(suggestionsPromptTemplate, strings.Join(ingredients, ", "))
		return []openrouter.Message{
			{Role: "system", Content: suggestionsSystem},
			{Role: "user", Content: prompt},
		}

	case fingerprint.KindSubstitutions:
		prompt := fmt.Sprintf(substitutionsPromptTemplate, q.Prompt)
		return []openrouter.Message{
			{Role: "system", Content: substitutionsSystem},
			{Role: "user", Content: prompt},
		}

	case fingerprint.KindAssist:
		system := assistSystem
		if q.Recipe != nil {
			name := q.Recipe.Name
			if name == "" {
				name = "the recipe"
			}
			system += fmt.Sprintf(" The user is currently cooking %s.", name)
			if q.Recipe.CurrentStep != "" {
				system += fmt.Sprintf(" They are at the step: %s", q.Recipe.CurrentStep)
			}
		}
		return []openrouter.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: q.Prompt},
		}

	case fingerprint.KindChat:
		msgs := q.Conversation
		if len(msgs) == 0 || msgs[0].Role != "system" {
			withSystem := make([]openrouter.Message, 0, len(msgs)+1)
			withSystem = append(withSystem, openrouter.Message{Role: "system", Content: chatSystem})
			msgs = append(withSystem, msgs...)
		}
		return msgs
	}
	return nil
}

func maxTokensFor(kind fingerprint.Kind) int {
	if kind == fingerprint.KindSuggestions {
		return suggestionMaxTokens
	}
	return defaultMaxTokens
}
