package mealplan

import "testing"

func entry(id, date string, orderIndex int) MealEntry {
	return MealEntry{ID: id, PlannedForDate: date, MealType: MealDinner, OrderIndex: orderIndex}
}

func testWeek() *WeeklyMealPlan {
	week := NewWeek(mustDate("2026-08-24"))
	week.Days[0].Entries = []MealEntry{
		entry("A", "2026-08-24", 0),
		entry("B", "2026-08-24", 1),
		entry("C", "2026-08-24", 2),
	}
	week.Days[1].Entries = []MealEntry{
		entry("X", "2026-08-25", 0),
	}
	return week
}

func orderOf(entries []MealEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func TestPlanDragSameDayMove(t *testing.T) {
	week := testWeek()

	plan := PlanDrag(week, DragEvent{
		Item:   DragItem{Kind: DragEntry, EntryID: "A"},
		Target: DropTarget{EntryID: "C"},
	})
	if plan == nil {
		t.Fatal("Expected a move plan")
	}

	got := orderOf(plan.TargetEntries)
	want := []string{"B", "C", "A"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
	for i, e := range plan.TargetEntries {
		if e.OrderIndex != i {
			t.Errorf("Entry %s: expected contiguous index %d, got %d", e.ID, i, e.OrderIndex)
		}
	}

	// All three entries changed position, so all three get update calls.
	if len(plan.Updates) != 3 {
		t.Fatalf("Expected 3 updates, got %d", len(plan.Updates))
	}
	for _, u := range plan.Updates {
		if u.Patch.OrderIndex == nil {
			t.Errorf("Update for %s missing order index", u.EntryID)
		}
		if u.Patch.PlannedForDate != nil {
			t.Errorf("Same-day move must not change dates (entry %s)", u.EntryID)
		}
	}
}

func TestPlanDragSkipsUnchangedEntries(t *testing.T) {
	week := testWeek()

	// Moving C next to B only swaps B and C; A keeps index 0.
	plan := PlanDrag(week, DragEvent{
		Item:   DragItem{Kind: DragEntry, EntryID: "C"},
		Target: DropTarget{EntryID: "B"},
	})
	if plan == nil {
		t.Fatal("Expected a move plan")
	}
	if len(plan.Updates) != 2 {
		t.Fatalf("Expected updates only for B and C, got %d", len(plan.Updates))
	}
	for _, u := range plan.Updates {
		if u.EntryID == "A" {
			t.Error("Entry A did not move and must not be updated")
		}
	}
}

func TestPlanDragSameDayNoOp(t *testing.T) {
	week := testWeek()

	plan := PlanDrag(week, DragEvent{
		Item:   DragItem{Kind: DragEntry, EntryID: "A"},
		Target: DropTarget{EntryID: "A"},
	})
	if plan != nil {
		t.Fatalf("Expected no-op for drop on itself, got %+v", plan)
	}
}

func TestPlanDragCrossDayToEmptyDay(t *testing.T) {
	week := testWeek()

	plan := PlanDrag(week, DragEvent{
		Item:   DragItem{Kind: DragEntry, EntryID: "X"},
		Target: DropTarget{DayDate: "2026-08-26"},
	})
	if plan == nil {
		t.Fatal("Expected a move plan")
	}
	if len(plan.SourceEntries) != 0 {
		t.Errorf("Expected source day emptied, got %v", orderOf(plan.SourceEntries))
	}
	if len(plan.TargetEntries) != 1 || plan.TargetEntries[0].OrderIndex != 0 {
		t.Errorf("Expected single entry at index 0, got %+v", plan.TargetEntries)
	}
	if plan.TargetEntries[0].PlannedForDate != "2026-08-26" {
		t.Errorf("Expected rebucketed date, got %s", plan.TargetEntries[0].PlannedForDate)
	}
	if len(plan.Updates) != 1 {
		t.Fatalf("Expected exactly one update call, got %d", len(plan.Updates))
	}
	u := plan.Updates[0]
	if u.EntryID != "X" || u.Patch.PlannedForDate == nil || *u.Patch.PlannedForDate != "2026-08-26" {
		t.Errorf("Unexpected moved-entry update: %+v", u)
	}
}

func TestPlanDragCrossDayShiftsNeighbors(t *testing.T) {
	week := testWeek()

	// Drop X on top of B: X takes index 1, B and C shift down.
	plan := PlanDrag(week, DragEvent{
		Item:   DragItem{Kind: DragEntry, EntryID: "X"},
		Target: DropTarget{EntryID: "B"},
	})
	if plan == nil {
		t.Fatal("Expected a move plan")
	}

	got := orderOf(plan.TargetEntries)
	want := []string{"A", "X", "B", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
	// X (moved), B and C (shifted); A keeps index 0 and is skipped.
	if len(plan.Updates) != 3 {
		t.Fatalf("Expected 3 updates, got %d", len(plan.Updates))
	}
}

func TestPlanDragRecipeCreatesEntry(t *testing.T) {
	week := testWeek()

	plan := PlanDrag(week, DragEvent{
		Item:   DragItem{Kind: DragRecipe, RecipeID: "r9", MealType: MealLunch},
		Target: DropTarget{DayDate: "2026-08-24"},
	})
	if plan == nil || plan.Create == nil {
		t.Fatal("Expected a create plan")
	}
	if plan.Create.OrderIndex != 3 {
		t.Errorf("Expected next order index 3, got %d", plan.Create.OrderIndex)
	}
	if len(plan.Updates) != 0 {
		t.Errorf("New entries must not trigger updates, got %d", len(plan.Updates))
	}

	// Empty day starts at 0.
	plan = PlanDrag(week, DragEvent{
		Item:   DragItem{Kind: DragRecipe, RecipeID: "r9", MealType: MealLunch},
		Target: DropTarget{DayDate: "2026-08-27"},
	})
	if plan == nil || plan.Create == nil || plan.Create.OrderIndex != 0 {
		t.Fatalf("Expected order index 0 on empty day, got %+v", plan)
	}
}

func TestPlanDragUnresolvableTarget(t *testing.T) {
	week := testWeek()

	cases := []DragEvent{
		{Item: DragItem{Kind: DragEntry, EntryID: "A"}, Target: DropTarget{}},
		{Item: DragItem{Kind: DragEntry, EntryID: "A"}, Target: DropTarget{DayDate: "2099-01-01"}},
		{Item: DragItem{Kind: DragEntry, EntryID: "A"}, Target: DropTarget{EntryID: "ghost"}},
		{Item: DragItem{Kind: DragEntry, EntryID: "ghost"}, Target: DropTarget{DayDate: "2026-08-24"}},
	}
	for i, ev := range cases {
		if plan := PlanDrag(week, ev); plan != nil {
			t.Errorf("Case %d: expected abandoned gesture, got %+v", i, plan)
		}
	}
	if plan := PlanDrag(nil, cases[0]); plan != nil {
		t.Error("Expected nil plan for nil week")
	}
}

func TestWeekStart(t *testing.T) {
	cases := map[string]string{
		"2026-08-24": "2026-08-24", // Monday stays
		"2026-08-27": "2026-08-24", // Thursday
		"2026-08-30": "2026-08-24", // Sunday belongs to the preceding Monday
	}
	for in, want := range cases {
		if got := WeekStart(mustDate(in)).Format(DateFormat); got != want {
			t.Errorf("WeekStart(%s): expected %s, got %s", in, want, got)
		}
	}
}

func TestNewWeek(t *testing.T) {
	week := NewWeek(mustDate("2026-08-24"))
	if len(week.Days) != 7 {
		t.Fatalf("Expected 7 days, got %d", len(week.Days))
	}
	if week.Days[0].DayOfWeek != "Monday" || week.Days[6].DayOfWeek != "Sunday" {
		t.Errorf("Unexpected day names: %s .. %s", week.Days[0].DayOfWeek, week.Days[6].DayOfWeek)
	}
	if week.Days[6].Date != "2026-08-30" {
		t.Errorf("Expected last day 2026-08-30, got %s", week.Days[6].Date)
	}
}
