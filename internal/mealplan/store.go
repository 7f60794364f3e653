package mealplan

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Store is the single source of truth for the current week's grid. Single
// entry mutations are not optimistic: the grid before a call stays
// canonical until the authoritative response lands; on failure the prior
// state is left untouched and only the error field changes. Drag gestures
// are the exception: the locally computed order is shown immediately while
// the update batch settles.
type Store struct {
	mu       sync.Mutex
	api      API
	recorder ReorderRecorder // optional

	week    *WeeklyMealPlan
	loading bool
	lastErr string
	changed chan struct{}
}

// NewStore creates a meal-plan store. recorder may be nil.
func NewStore(api API, recorder ReorderRecorder) *Store {
	return &Store{
		api:      api,
		recorder: recorder,
		changed:  make(chan struct{}, 1),
	}
}

// Changed signals state changes; notifications are coalesced.
func (s *Store) Changed() <-chan struct{} {
	return s.changed
}

// Week returns a deep copy of the current week grid, or nil before the
// first successful load.
func (s *Store) Week() *WeeklyMealPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneWeek(s.week)
}

// Loading reports whether a remote call is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the last store-level error message, empty when healthy.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LoadWeek replaces the grid with the server's view of the given week.
func (s *Store) LoadWeek(ctx context.Context, weekStartDate string) error {
	s.setLoading(true)

	week, err := s.api.GetWeeklyMealPlan(ctx, weekStartDate)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.week = week
	for i := range s.week.Days {
		sortDay(&s.week.Days[i])
	}
	s.loading = false
	s.lastErr = ""
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// AddEntry creates an entry and slots the authoritative result into the
// day matching its planned date.
func (s *Store) AddEntry(ctx context.Context, input CreateEntryInput) error {
	s.setLoading(true)

	entry, err := s.api.CreateMealEntry(ctx, input)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.insertEntryLocked(*entry)
	s.loading = false
	s.lastErr = ""
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// UpdateEntry patches an entry. The returned entry is removed from
// whichever day currently holds it and re-inserted into the day matching
// the returned planned date, which handles same-day edits and cross-day
// moves through one code path.
func (s *Store) UpdateEntry(ctx context.Context, id string, patch EntryPatch) error {
	s.setLoading(true)

	entry, err := s.api.UpdateMealEntry(ctx, id, patch)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.removeEntryLocked(id)
	s.insertEntryLocked(*entry)
	s.loading = false
	s.lastErr = ""
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// RemoveEntry deletes an entry remotely, then from every day it appears in.
func (s *Store) RemoveEntry(ctx context.Context, id string) error {
	s.setLoading(true)

	if err := s.api.DeleteMealEntry(ctx, id); err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.removeEntryLocked(id)
	s.loading = false
	s.lastErr = ""
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// MarkCooked flags an entry as cooked, replacing it in place at its
// current position; cooking never reorders siblings.
func (s *Store) MarkCooked(ctx context.Context, id string, cookedAt *time.Time) error {
	s.setLoading(true)

	entry, err := s.api.MarkMealCooked(ctx, id, cookedAt)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.week != nil {
	days:
		for i := range s.week.Days {
			for j := range s.week.Days[i].Entries {
				if s.week.Days[i].Entries[j].ID == id {
					s.week.Days[i].Entries[j] = *entry
					break days
				}
			}
		}
	}
	s.loading = false
	s.lastErr = ""
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// ApplyDrag realizes one completed drag gesture: the locally computed
// order is applied immediately, then the minimal update batch is issued
// concurrently and awaited. If any call fails the week is reloaded from
// the server, which is the source of truth for ordering.
func (s *Store) ApplyDrag(ctx context.Context, ev DragEvent) error {
	s.mu.Lock()
	plan := PlanDrag(s.week, ev)
	if plan == nil {
		s.mu.Unlock()
		return nil
	}
	weekStart := s.week.WeekStartDate

	if plan.Create != nil {
		s.mu.Unlock()
		return s.AddEntry(ctx, *plan.Create)
	}

	// Optimistic: show the new order while the batch settles.
	s.setDayEntriesLocked(plan.SourceDayDate, plan.SourceEntries)
	if plan.TargetDayDate != plan.SourceDayDate {
		s.setDayEntriesLocked(plan.TargetDayDate, plan.TargetEntries)
	}
	s.loading = true
	s.notifyLocked()
	s.mu.Unlock()

	started := time.Now()
	results := make([]*MealEntry, len(plan.Updates))

	g, gctx := errgroup.WithContext(ctx)
	for i, upd := range plan.Updates {
		i, upd := i, upd
		g.Go(func() error {
			entry, err := s.api.UpdateMealEntry(gctx, upd.EntryID, upd.Patch)
			if err != nil {
				return err
			}
			results[i] = entry
			return nil
		})
	}
	err := g.Wait()

	if s.recorder != nil {
		s.recorder.RecordReorder(len(plan.Updates), time.Since(started), err != nil)
	}

	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.loading = false
		s.notifyLocked()
		s.mu.Unlock()
		// Local order may now disagree with the authority; re-sync. The
		// reload clears the error field on success, so the batch error is
		// restored afterwards: the failed drag stays visible.
		if loadErr := s.LoadWeek(ctx, weekStart); loadErr == nil {
			s.mu.Lock()
			s.lastErr = err.Error()
			s.notifyLocked()
			s.mu.Unlock()
		}
		return err
	}

	s.mu.Lock()
	for _, entry := range results {
		if entry == nil {
			continue
		}
		s.removeEntryLocked(entry.ID)
		s.insertEntryLocked(*entry)
	}
	s.loading = false
	s.lastErr = ""
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// --- locked helpers ---

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *Store) fail(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.loading = false
	s.notifyLocked()
	s.mu.Unlock()
}

// insertEntryLocked buckets an authoritative entry into the day matching
// its planned date and re-sorts that day by order index (stable, so ties
// keep insertion order).
func (s *Store) insertEntryLocked(entry MealEntry) {
	if s.week == nil {
		return
	}
	for i := range s.week.Days {
		if s.week.Days[i].Date == entry.PlannedForDate {
			s.week.Days[i].Entries = append(s.week.Days[i].Entries, entry)
			sortDay(&s.week.Days[i])
			return
		}
	}
}

// removeEntryLocked deletes by id from every day; an entry should only
// ever live in one.
func (s *Store) removeEntryLocked(id string) {
	if s.week == nil {
		return
	}
	for i := range s.week.Days {
		entries := s.week.Days[i].Entries
		for j := 0; j < len(entries); j++ {
			if entries[j].ID == id {
				entries = append(entries[:j], entries[j+1:]...)
				j--
			}
		}
		s.week.Days[i].Entries = entries
	}
}

func (s *Store) setDayEntriesLocked(date string, entries []MealEntry) {
	if s.week == nil {
		return
	}
	for i := range s.week.Days {
		if s.week.Days[i].Date == date {
			s.week.Days[i].Entries = entries
			return
		}
	}
}

func (s *Store) notifyLocked() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func sortDay(day *Day) {
	sort.SliceStable(day.Entries, func(a, b int) bool {
		return day.Entries[a].OrderIndex < day.Entries[b].OrderIndex
	})
}

func cloneWeek(w *WeeklyMealPlan) *WeeklyMealPlan {
	if w == nil {
		return nil
	}
	out := &WeeklyMealPlan{WeekStartDate: w.WeekStartDate, Days: make([]Day, len(w.Days))}
	for i, d := range w.Days {
		out.Days[i] = Day{
			Date:      d.Date,
			DayOfWeek: d.DayOfWeek,
			Entries:   append([]MealEntry(nil), d.Entries...),
		}
	}
	return out
}
