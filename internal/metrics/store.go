package metrics

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

// timeLayout is how recorded_at is stored; SQLite's date() understands
// this form, which the daily aggregation relies on.
const timeLayout = "2006-01-02 15:04:05"

// StreamMetric records metadata for one chat stream.
type StreamMetric struct {
	ConversationID string
	DeltaCount     int
	LatencyMS      int64
	Errored        bool
	Timestamp      time.Time
}

// ReorderMetric records metadata for one drag-gesture update batch.
type ReorderMetric struct {
	UpdateCount int
	LatencyMS   int64
	Errored     bool
	Timestamp   time.Time
}

// Store handles persistence of usage metrics to SQLite. It implements
// chat.StreamRecorder and mealplan.ReorderRecorder; recording failures
// are logged and swallowed so metrics can never break the stores.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordStream saves one stream metric.
func (s *Store) RecordStream(conversationID string, deltaCount int, latency time.Duration, errored bool) {
	_, err := s.db.Exec(
		`INSERT INTO stream_metrics (conversation_id, delta_count, latency_ms, errored, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conversationID, deltaCount, latency.Milliseconds(), boolToInt(errored), time.Now().UTC().Format(timeLayout))
	if err != nil {
		log.Printf("metrics: failed to record stream metric: %v", err)
	}
}

// RecordReorder saves one reorder metric.
func (s *Store) RecordReorder(updateCount int, latency time.Duration, errored bool) {
	_, err := s.db.Exec(
		`INSERT INTO reorder_metrics (update_count, latency_ms, errored, recorded_at)
		 VALUES (?, ?, ?, ?)`,
		updateCount, latency.Milliseconds(), boolToInt(errored), time.Now().UTC().Format(timeLayout))
	if err != nil {
		log.Printf("metrics: failed to record reorder metric: %v", err)
	}
}

// DailyUsage aggregates one day of activity.
type DailyUsage struct {
	Date          string
	Streams       int
	Deltas        int
	StreamErrors  int
	Reorders      int
	ReorderErrors int
	AvgLatencyMS  int64
}

// GetDailyUsage retrieves per-day usage for the last N days, newest first.
func (s *Store) GetDailyUsage(days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format(timeLayout)

	byDay := make(map[string]*DailyUsage)
	var order []string
	day := func(date string) *DailyUsage {
		if u, ok := byDay[date]; ok {
			return u
		}
		u := &DailyUsage{Date: date}
		byDay[date] = u
		order = append(order, date)
		return u
	}

	rows, err := s.db.Query(
		`SELECT date(recorded_at), COUNT(*), SUM(delta_count), SUM(errored), AVG(latency_ms)
		 FROM stream_metrics WHERE recorded_at >= ?
		 GROUP BY date(recorded_at) ORDER BY date(recorded_at) DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream metrics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var date string
		var count, deltas, errors int
		var avgLatency sql.NullFloat64
		if err := rows.Scan(&date, &count, &deltas, &errors, &avgLatency); err != nil {
			return nil, fmt.Errorf("failed to scan stream metrics: %w", err)
		}
		u := day(date)
		u.Streams = count
		u.Deltas = deltas
		u.StreamErrors = errors
		if avgLatency.Valid {
			u.AvgLatencyMS = int64(avgLatency.Float64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reorderRows, err := s.db.Query(
		`SELECT date(recorded_at), COUNT(*), SUM(errored)
		 FROM reorder_metrics WHERE recorded_at >= ?
		 GROUP BY date(recorded_at) ORDER BY date(recorded_at) DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query reorder metrics: %w", err)
	}
	defer reorderRows.Close()
	for reorderRows.Next() {
		var date string
		var count, errors int
		if err := reorderRows.Scan(&date, &count, &errors); err != nil {
			return nil, fmt.Errorf("failed to scan reorder metrics: %w", err)
		}
		u := day(date)
		u.Reorders = count
		u.ReorderErrors = errors
	}
	if err := reorderRows.Err(); err != nil {
		return nil, err
	}

	results := make([]DailyUsage, 0, len(order))
	for _, date := range order {
		results = append(results, *byDay[date])
	}
	return results, nil
}

// Cleanup removes records older than the specified number of days.
func (s *Store) Cleanup(olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(timeLayout)

	var removed int64
	for _, table := range []string{"stream_metrics", "reorder_metrics"} {
		res, err := s.db.Exec(`DELETE FROM `+table+` WHERE recorded_at < ?`, threshold)
		if err != nil {
			return removed, fmt.Errorf("failed to clean %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			removed += n
		}
	}
	return removed, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
