package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"mealboard/internal/api"
	"mealboard/internal/chat"
	"mealboard/internal/clipper"
	"mealboard/internal/config"
	"mealboard/internal/database"
	"mealboard/internal/localstate"
	"mealboard/internal/mealplan"
	"mealboard/internal/metrics"
	"mealboard/internal/recipe"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	client, err := api.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create API client: %v", err)
	}

	recipeRepo := recipe.NewRepository(db.SQL)
	stateStore := localstate.NewStore(db.SQL)
	metricsStore := metrics.NewStore(db.SQL)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "chat":
		if len(os.Args) < 3 {
			log.Fatal("Usage: mealboard chat \"<message>\"")
		}
		runChat(ctx, client, stateStore, metricsStore, strings.Join(os.Args[2:], " "))
	case "week":
		date := time.Now()
		if len(os.Args) > 2 {
			date, err = time.Parse(mealplan.DateFormat, os.Args[2])
			if err != nil {
				log.Fatalf("Invalid date %q: %v", os.Args[2], err)
			}
		}
		runWeek(ctx, client, metricsStore, date)
	case "clip":
		if len(os.Args) < 3 {
			log.Fatal("Usage: mealboard clip <url>")
		}
		rec, err := clipper.NewClipper(client, recipeRepo).ClipURL(ctx, os.Args[2])
		if err != nil {
			log.Fatalf("Clipping failed: %v", err)
		}
		fmt.Printf("Saved %q (%d ingredients, %d steps)\n", rec.Title, len(rec.Ingredients), len(rec.Steps))
	case "sync-recipes":
		recipes, err := client.ListRecipes(ctx)
		if err != nil {
			log.Fatalf("Failed to list recipes: %v", err)
		}
		if err := recipeRepo.ReplaceAll(ctx, recipes); err != nil {
			log.Fatalf("Failed to refresh recipe cache: %v", err)
		}
		fmt.Printf("Cached %d recipes.\n", len(recipes))
	case "metrics":
		runMetrics(metricsStore)
	case "metrics-cleanup":
		cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(os.Args[2:])

		affected, err := metricsStore.Cleanup(*days)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		fmt.Printf("Successfully removed %d old metric records.\n", affected)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// runChat sends one message into the active conversation and prints the
// streamed reply as it arrives.
func runChat(ctx context.Context, client *api.Client, stateStore *localstate.Store, metricsStore *metrics.Store, text string) {
	store := chat.NewStore(client, stateStore, metricsStore)
	if err := store.Hydrate(); err != nil {
		log.Printf("Warning: failed to hydrate chat state: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	store.SendMessage(ctx, text)

	printed := 0
	for {
		select {
		case <-store.Changed():
		case <-ctx.Done():
			store.CancelPendingAssistantReply()
			log.Fatal("Timed out waiting for a reply")
		}

		reply, streaming := latestAssistantText(store)
		if len(reply) > printed {
			fmt.Print(reply[printed:])
			printed = len(reply)
		}
		if !streaming && !store.Sending() {
			if errText := store.Err(); errText != "" && printed == 0 {
				log.Fatalf("Chat failed: %s", errText)
			}
			fmt.Println()
			return
		}
	}
}

func latestAssistantText(store *chat.Store) (string, bool) {
	convID := store.ActiveConversationID()
	if convID == "" {
		return "", false
	}
	msgs := store.Messages(convID)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant {
			return msgs[i].Text(), msgs[i].IsStreaming
		}
	}
	return "", false
}

func runWeek(ctx context.Context, client *api.Client, metricsStore *metrics.Store, date time.Time) {
	store := mealplan.NewStore(client, metricsStore)
	weekStart := mealplan.WeekStart(date).Format(mealplan.DateFormat)
	if err := store.LoadWeek(ctx, weekStart); err != nil {
		log.Fatalf("Failed to load week: %v", err)
	}

	week := store.Week()
	fmt.Printf("Week of %s\n", week.WeekStartDate)
	for _, day := range week.Days {
		fmt.Printf("\n%s (%s)\n", day.DayOfWeek, day.Date)
		if len(day.Entries) == 0 {
			fmt.Println("  -")
			continue
		}
		for _, e := range day.Entries {
			label := e.RecipeID
			switch {
			case e.IsEatingOut:
				label = "eating out"
			case e.IsLeftover:
				label = "leftovers"
			case label == "" && e.Notes != "":
				label = e.Notes
			}
			cooked := ""
			if e.WasCooked {
				cooked = " [cooked]"
			}
			fmt.Printf("  %d. %s: %s%s\n", e.OrderIndex+1, e.MealType, label, cooked)
		}
	}
}

func runMetrics(metricsStore *metrics.Store) {
	usage, err := metricsStore.GetDailyUsage(7)
	if err != nil {
		log.Fatalf("Failed to load metrics: %v", err)
	}

	if len(usage) == 0 {
		fmt.Println("No activity recorded in the last 7 days.")
	}
	for _, d := range usage {
		fmt.Printf("%s  streams=%d deltas=%d stream_errors=%d reorders=%d avg_latency=%dms\n",
			d.Date, d.Streams, d.Deltas, d.StreamErrors, d.Reorders, d.AvgLatencyMS)
	}

	health := metrics.GetSysHealth("data")
	fmt.Printf("\nRAM %dMB alloc / %dMB sys, %d goroutines, data %s\n",
		health.AllocMB, health.SysMB, health.Goroutines, health.DataDiskSize)
}

func printUsage() {
	fmt.Println("Usage: mealboard <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  chat \"<message>\"   Send a message and stream the reply")
	fmt.Println("  week [YYYY-MM-DD]  Show the meal plan for a week")
	fmt.Println("  clip <url>         Import a recipe from a URL")
	fmt.Println("  sync-recipes       Refresh the local recipe cache")
	fmt.Println("  metrics            Show recent usage and health")
	fmt.Println("  metrics-cleanup    Remove old metric records")
}
