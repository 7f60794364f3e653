package recipe

import (
	"strings"
	"time"
)

// Recipe is one recipe in the account's collection. The server owns the
// canonical copy; the local cache keeps a snapshot for offline search.
type Recipe struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Ingredients []string  `json:"ingredients"`
	Steps       []string  `json:"steps"`
	PrepTime    string    `json:"prep_time,omitempty"`
	Servings    string    `json:"servings,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary renders a short one-line description for list views.
func (r *Recipe) Summary() string {
	var sb strings.Builder
	sb.WriteString(r.Title)
	if r.PrepTime != "" {
		sb.WriteString(" (")
		sb.WriteString(r.PrepTime)
		sb.WriteString(")")
	}
	if len(r.Tags) > 0 {
		sb.WriteString(" — ")
		sb.WriteString(strings.Join(r.Tags, ", "))
	}
	return sb.String()
}
