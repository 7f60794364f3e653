package chat

import "strings"

// friendlyNames maps tool and status identifiers to the text shown in the
// assistant placeholder while the server is working.
var friendlyNames = map[string]string{
	"thinking":          "Thinking...",
	"search_recipes":    "Searching your recipes...",
	"fetch_recipe":      "Looking up a recipe...",
	"create_meal_entry": "Adding to your plan...",
	"update_meal_entry": "Updating your plan...",
	"suggest_meals":     "Picking meal ideas...",
	"shopping_list":     "Building your shopping list...",
}

// FriendlyStatus converts a tool or status identifier into human-readable
// progress text. Unknown names fall back to a munged form: the first token
// is title-cased and turned into a gerund, the remaining tokens follow
// as-is. Pure function, no state.
func FriendlyStatus(name string) string {
	if text, ok := friendlyNames[name]; ok {
		return text
	}

	tokens := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	if len(tokens) == 0 {
		return "Working..."
	}

	verb := strings.ToLower(tokens[0])
	verb = strings.TrimSuffix(verb, "e") + "ing"
	verb = strings.ToUpper(verb[:1]) + verb[1:]

	rest := strings.ToLower(strings.Join(tokens[1:], " "))
	if rest == "" {
		return verb + "..."
	}
	return verb + " " + rest + "..."
}
