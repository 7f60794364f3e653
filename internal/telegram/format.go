package telegram

import (
	"fmt"
	"strings"

	"mealboard/internal/mealplan"
	"mealboard/internal/metrics"
	"mealboard/internal/recipe"
)

// RecipeTitleResolver maps a recipe id to a display title; ids without a
// cached title render as-is.
type RecipeTitleResolver func(recipeID string) string

var mealIcons = map[mealplan.MealType]string{
	mealplan.MealBreakfast: "🍳",
	mealplan.MealLunch:     "🥪",
	mealplan.MealDinner:    "🍲",
	mealplan.MealSnack:     "🍎",
}

func formatWeekMarkdown(week *mealplan.WeeklyMealPlan, titles RecipeTitleResolver) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📅 *Week of %s*\n\n", week.WeekStartDate))

	for _, day := range week.Days {
		sb.WriteString(fmt.Sprintf("*%s* (%s)\n", day.DayOfWeek, day.Date))
		if len(day.Entries) == 0 {
			sb.WriteString("_nothing planned_\n\n")
			continue
		}
		for _, e := range day.Entries {
			sb.WriteString(formatEntryLine(e, titles))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatEntryLine(e mealplan.MealEntry, titles RecipeTitleResolver) string {
	icon := mealIcons[e.MealType]
	if icon == "" {
		icon = "•"
	}

	label := ""
	switch {
	case e.IsEatingOut:
		label = "Eating out"
	case e.IsLeftover:
		label = "Leftovers"
	case e.RecipeID != "":
		label = e.RecipeID
		if titles != nil {
			if title := titles(e.RecipeID); title != "" {
				label = title
			}
		}
	case e.Notes != "":
		label = e.Notes
	default:
		label = string(e.MealType)
	}

	line := fmt.Sprintf("%s %s: %s", icon, capitalize(string(e.MealType)), label)
	if e.WasCooked {
		line += " ✅"
	}
	if e.Notes != "" && label != e.Notes {
		line += fmt.Sprintf(" _(%s)_", e.Notes)
	}
	return line + "\n"
}

func formatRecipeList(recipes []recipe.Recipe) string {
	if len(recipes) == 0 {
		return "🔍 No recipes found."
	}

	var sb strings.Builder
	sb.WriteString("📖 *Your Recipes*\n\n")
	for _, r := range recipes {
		sb.WriteString("• " + r.Summary() + "\n")
	}
	return sb.String()
}

func formatUsageReport(usage []metrics.DailyUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d streams (%d deltas, %d errors), %d reorders\n",
			d.Date, d.Streams, d.Deltas, d.StreamErrors+d.ReorderErrors, d.Reorders))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", health.DataDiskSize))
	return sb.String()
}

func escapeError(err error) string {
	return strings.ReplaceAll(err.Error(), "`", "'")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
