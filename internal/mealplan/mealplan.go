package mealplan

import (
	"context"
	"time"
)

// DateFormat is the wire format for plan dates.
const DateFormat = "2006-01-02"

// MealType slots an entry into a meal of the day.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// MealEntry is one scheduled meal. PlannedForDate decides which day bucket
// the entry lives in; OrderIndex decides its position within that day.
type MealEntry struct {
	ID             string     `json:"id"`
	PlannedForDate string     `json:"planned_for_date"`
	MealType       MealType   `json:"meal_type"`
	RecipeID       string     `json:"recipe_id,omitempty"`
	IsLeftover     bool       `json:"is_leftover"`
	IsEatingOut    bool       `json:"is_eating_out"`
	Notes          string     `json:"notes,omitempty"`
	OrderIndex     int        `json:"order_index"`
	WasCooked      bool       `json:"was_cooked"`
	CookedAt       *time.Time `json:"cooked_at,omitempty"`
}

// Day is one column of the week grid.
type Day struct {
	Date      string      `json:"date"`
	DayOfWeek string      `json:"day_of_week"`
	Entries   []MealEntry `json:"entries"`
}

// WeeklyMealPlan is the full week grid, always exactly 7 days.
type WeeklyMealPlan struct {
	WeekStartDate string `json:"week_start_date"`
	Days          []Day  `json:"days"`
}

// CreateEntryInput is the payload for creating a new entry.
type CreateEntryInput struct {
	PlannedForDate string   `json:"planned_for_date"`
	MealType       MealType `json:"meal_type"`
	RecipeID       string   `json:"recipe_id,omitempty"`
	IsLeftover     bool     `json:"is_leftover"`
	IsEatingOut    bool     `json:"is_eating_out"`
	Notes          string   `json:"notes,omitempty"`
	OrderIndex     int      `json:"order_index"`
}

// EntryPatch is a partial update; nil fields are left untouched.
type EntryPatch struct {
	PlannedForDate *string   `json:"planned_for_date,omitempty"`
	MealType       *MealType `json:"meal_type,omitempty"`
	RecipeID       *string   `json:"recipe_id,omitempty"`
	IsLeftover     *bool     `json:"is_leftover,omitempty"`
	IsEatingOut    *bool     `json:"is_eating_out,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	OrderIndex     *int      `json:"order_index,omitempty"`
}

// API is the remote ordering authority. The client never assumes its own
// computed order is final until the server confirms it.
type API interface {
	GetWeeklyMealPlan(ctx context.Context, weekStartDate string) (*WeeklyMealPlan, error)
	CreateMealEntry(ctx context.Context, input CreateEntryInput) (*MealEntry, error)
	UpdateMealEntry(ctx context.Context, id string, patch EntryPatch) (*MealEntry, error)
	DeleteMealEntry(ctx context.Context, id string) error
	MarkMealCooked(ctx context.Context, id string, cookedAt *time.Time) (*MealEntry, error)
}

// ReorderRecorder collects drag-gesture metrics.
type ReorderRecorder interface {
	RecordReorder(updateCount int, latency time.Duration, errored bool)
}

// WeekStart returns the Monday of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	return t.AddDate(0, 0, -offset)
}

// NewWeek builds an empty 7-day grid starting at weekStart.
func NewWeek(weekStart time.Time) *WeeklyMealPlan {
	week := &WeeklyMealPlan{
		WeekStartDate: weekStart.Format(DateFormat),
		Days:          make([]Day, 7),
	}
	for i := 0; i < 7; i++ {
		d := weekStart.AddDate(0, 0, i)
		week.Days[i] = Day{
			Date:      d.Format(DateFormat),
			DayOfWeek: d.Weekday().String(),
			Entries:   []MealEntry{},
		}
	}
	return week
}
