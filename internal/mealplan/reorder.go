package mealplan

// DragItemKind distinguishes what is being dragged.
type DragItemKind string

const (
	DragRecipe DragItemKind = "recipe" // a recipe template becoming a new entry
	DragEntry  DragItemKind = "entry"  // an existing entry being moved
)

// DragItem describes the dragged object.
type DragItem struct {
	Kind     DragItemKind
	RecipeID string   // set for DragRecipe
	EntryID  string   // set for DragEntry
	MealType MealType // meal slot for a newly created entry
}

// DropTarget describes where the item was released: on another entry, or
// on a day-level drop zone. EntryID wins when both are set.
type DropTarget struct {
	EntryID string
	DayDate string
}

// DragEvent is one completed drag-and-drop gesture.
type DragEvent struct {
	Item   DragItem
	Target DropTarget
}

// EntryUpdate is one persistence call required to realize the new order.
type EntryUpdate struct {
	EntryID string
	Patch   EntryPatch
}

// MovePlan is the outcome of a drag gesture: either a single create, or a
// minimal batch of updates plus the projected day lists the grid should
// show while the batch settles.
type MovePlan struct {
	Create  *CreateEntryInput
	Updates []EntryUpdate

	SourceDayDate string
	TargetDayDate string
	SourceEntries []MealEntry
	TargetEntries []MealEntry
}

// PlanDrag computes the target day and order index for a drag gesture and
// the minimal set of persistence calls needed to realize it. It is a pure
// function over the current week. A nil result means the gesture requires
// no calls: the drop target could not be resolved, or the move is a no-op.
func PlanDrag(week *WeeklyMealPlan, ev DragEvent) *MovePlan {
	if week == nil {
		return nil
	}

	targetDay, dropIndex := resolveTarget(week, ev.Target)
	if targetDay == nil {
		return nil
	}

	switch ev.Item.Kind {
	case DragRecipe:
		return &MovePlan{
			Create: &CreateEntryInput{
				PlannedForDate: targetDay.Date,
				MealType:       ev.Item.MealType,
				RecipeID:       ev.Item.RecipeID,
				OrderIndex:     NextOrderIndex(targetDay),
			},
			TargetDayDate: targetDay.Date,
		}
	case DragEntry:
		return planEntryMove(week, ev.Item.EntryID, targetDay, dropIndex)
	default:
		return nil
	}
}

// resolveTarget finds the day the item was dropped on. Dropping on an entry
// targets that entry's day at the entry's position; dropping on a day
// container targets its end of list.
func resolveTarget(week *WeeklyMealPlan, target DropTarget) (*Day, int) {
	if target.EntryID != "" {
		for i := range week.Days {
			for j := range week.Days[i].Entries {
				if week.Days[i].Entries[j].ID == target.EntryID {
					return &week.Days[i], j
				}
			}
		}
		return nil, 0
	}
	if target.DayDate != "" {
		for i := range week.Days {
			if week.Days[i].Date == target.DayDate {
				return &week.Days[i], len(week.Days[i].Entries)
			}
		}
	}
	return nil, 0
}

// NextOrderIndex returns the order index for an entry appended to a day:
// one past the current maximum, or 0 for an empty day.
func NextOrderIndex(day *Day) int {
	next := 0
	for _, e := range day.Entries {
		if e.OrderIndex >= next {
			next = e.OrderIndex + 1
		}
	}
	return next
}

func planEntryMove(week *WeeklyMealPlan, entryID string, targetDay *Day, toIndex int) *MovePlan {
	sourceDay, fromIndex := findEntry(week, entryID)
	if sourceDay == nil {
		return nil
	}

	if sourceDay.Date == targetDay.Date {
		if fromIndex == toIndex {
			return nil
		}
		return planSameDayMove(sourceDay, fromIndex, toIndex)
	}
	return planCrossDayMove(sourceDay, targetDay, fromIndex, toIndex)
}

func findEntry(week *WeeklyMealPlan, entryID string) (*Day, int) {
	for i := range week.Days {
		for j := range week.Days[i].Entries {
			if week.Days[i].Entries[j].ID == entryID {
				return &week.Days[i], j
			}
		}
	}
	return nil, 0
}

// planSameDayMove performs a stable array move within one day and emits an
// update for every entry whose position no longer matches its order index.
func planSameDayMove(day *Day, fromIndex, toIndex int) *MovePlan {
	entries := moveEntry(day.Entries, fromIndex, toIndex)

	plan := &MovePlan{
		SourceDayDate: day.Date,
		TargetDayDate: day.Date,
	}
	for pos := range entries {
		if entries[pos].OrderIndex != pos {
			pos := pos
			plan.Updates = append(plan.Updates, EntryUpdate{
				EntryID: entries[pos].ID,
				Patch:   EntryPatch{OrderIndex: &pos},
			})
			entries[pos].OrderIndex = pos
		}
	}
	plan.SourceEntries = entries
	plan.TargetEntries = entries
	if len(plan.Updates) == 0 {
		return nil
	}
	return plan
}

// planCrossDayMove removes the entry from its source day, inserts it into
// the target day, and emits one update for the moved entry plus one for
// every neighbor whose index shifted.
func planCrossDayMove(sourceDay, targetDay *Day, fromIndex, toIndex int) *MovePlan {
	moved := sourceDay.Entries[fromIndex]

	source := append([]MealEntry(nil), sourceDay.Entries[:fromIndex]...)
	source = append(source, sourceDay.Entries[fromIndex+1:]...)

	if toIndex > len(targetDay.Entries) {
		toIndex = len(targetDay.Entries)
	}
	target := append([]MealEntry(nil), targetDay.Entries[:toIndex]...)
	target = append(target, moved)
	target = append(target, targetDay.Entries[toIndex:]...)

	plan := &MovePlan{
		SourceDayDate: sourceDay.Date,
		TargetDayDate: targetDay.Date,
	}

	// The moved entry always needs its new date; its index may match by
	// coincidence but the date change forces the call anyway.
	movedDate := targetDay.Date
	movedIndex := toIndex
	plan.Updates = append(plan.Updates, EntryUpdate{
		EntryID: moved.ID,
		Patch:   EntryPatch{PlannedForDate: &movedDate, OrderIndex: &movedIndex},
	})
	target[toIndex].PlannedForDate = movedDate

	for pos := range target {
		if pos == toIndex {
			target[pos].OrderIndex = pos
			continue
		}
		if target[pos].OrderIndex != pos {
			pos := pos
			plan.Updates = append(plan.Updates, EntryUpdate{
				EntryID: target[pos].ID,
				Patch:   EntryPatch{OrderIndex: &pos},
			})
			target[pos].OrderIndex = pos
		}
	}
	for pos := range source {
		if source[pos].OrderIndex != pos {
			pos := pos
			plan.Updates = append(plan.Updates, EntryUpdate{
				EntryID: source[pos].ID,
				Patch:   EntryPatch{OrderIndex: &pos},
			})
			source[pos].OrderIndex = pos
		}
	}

	plan.SourceEntries = source
	plan.TargetEntries = target
	return plan
}

// moveEntry removes the element at from and re-inserts it at to, clamping
// the insertion index to the list length.
func moveEntry(entries []MealEntry, from, to int) []MealEntry {
	out := append([]MealEntry(nil), entries...)
	if from < 0 || from >= len(out) {
		return out
	}
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	if to < 0 {
		to = 0
	}
	if to > len(out) {
		to = len(out)
	}
	out = append(out[:to], append([]MealEntry{moved}, out[to:]...)...)
	return out
}
