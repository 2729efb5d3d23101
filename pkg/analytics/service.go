// Package analytics aggregates a user's memories into dashboard statistics:
// totals, type and sentiment distributions, average classifier confidence,
// the current daily streak and a 12-month creation timeline.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// TimelineMonths is the span of the creation timeline.
const TimelineMonths = 12

// MonthCount is the number of memories created in one calendar month.
type MonthCount struct {
	// Month is the calendar month in "2006-01" form.
	Month string `json:"month"`

	// Count is how many memories were created that month.
	Count int `json:"count"`
}

// YearCount is the number of memories created in one calendar year.
type YearCount struct {
	Year  string `json:"year"`
	Count int    `json:"count"`
}

// Summary is the full analytics payload for one user.
type Summary struct {
	// TotalMemories is the user's total memory count.
	TotalMemories int `json:"total_memories"`

	// TypeDistribution counts memories per type. Every type has an entry,
	// zero or not.
	TypeDistribution map[storage.MemoryType]int `json:"type_distribution"`

	// SentimentStats counts memories per sentiment label.
	SentimentStats map[string]int `json:"sentiment_stats"`

	// AverageConfidence is the mean classifier confidence over all
	// memories, rounded to two decimals. Zero when there are no memories.
	AverageConfidence float64 `json:"average_confidence"`

	// Streak is the current run of consecutive UTC days with at least one
	// memory, anchored at today or yesterday. A run that ended before
	// yesterday counts as zero.
	Streak int `json:"streak"`

	// Timeline covers the last TimelineMonths calendar months including
	// the current one, oldest first, with zero-count months present.
	Timeline []MonthCount `json:"timeline"`

	// MemoriesByYear counts memories per calendar year, oldest first.
	MemoriesByYear []YearCount `json:"memories_by_year"`
}

// Service computes analytics summaries.
type Service struct {
	memories storage.MemoryStore
	now      func() time.Time
}

// NewService creates an analytics service.
func NewService(memories storage.MemoryStore) *Service {
	return &Service{
		memories: memories,
		now:      time.Now,
	}
}

// Summarize aggregates all of userID's memories into a Summary. All date
// bucketing uses UTC calendar days and months.
func (s *Service) Summarize(ctx context.Context, userID string) (*Summary, error) {
	memories, err := s.memories.ListMemories(ctx, &storage.ListMemoriesOptions{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to load memories: %w", err)
	}

	summary := &Summary{
		TotalMemories:    len(memories),
		TypeDistribution: make(map[storage.MemoryType]int, len(storage.MemoryTypes())),
		SentimentStats: map[string]int{
			storage.SentimentPositive: 0,
			storage.SentimentNeutral:  0,
			storage.SentimentNegative: 0,
		},
	}
	for _, t := range storage.MemoryTypes() {
		summary.TypeDistribution[t] = 0
	}

	byDay := make(map[string]int)
	byMonth := make(map[string]int)
	byYear := make(map[string]int)
	totalConfidence := 0.0

	for _, m := range memories {
		if _, ok := summary.TypeDistribution[m.Type]; ok {
			summary.TypeDistribution[m.Type]++
		}
		if _, ok := summary.SentimentStats[m.Sentiment]; ok {
			summary.SentimentStats[m.Sentiment]++
		}
		totalConfidence += m.Confidence

		created := m.CreatedAt.UTC()
		byDay[created.Format("2006-01-02")]++
		byMonth[created.Format("2006-01")]++
		byYear[created.Format("2006")]++
	}

	if len(memories) > 0 {
		avg := totalConfidence / float64(len(memories))
		summary.AverageConfidence = math.Round(avg*100) / 100
	}

	now := s.now().UTC()
	summary.Streak = currentStreak(byDay, now)
	summary.Timeline = timeline(byMonth, now)
	summary.MemoriesByYear = yearCounts(byYear, now)

	return summary, nil
}

// currentStreak walks backwards from today (or yesterday, when today has no
// entry yet) counting consecutive days with activity.
func currentStreak(byDay map[string]int, now time.Time) int {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if byDay[day.Format("2006-01-02")] == 0 {
		day = day.AddDate(0, 0, -1)
		if byDay[day.Format("2006-01-02")] == 0 {
			return 0
		}
	}

	streak := 0
	for byDay[day.Format("2006-01-02")] > 0 {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

func timeline(byMonth map[string]int, now time.Time) []MonthCount {
	months := make([]MonthCount, 0, TimelineMonths)
	for i := TimelineMonths - 1; i >= 0; i-- {
		month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		key := month.Format("2006-01")
		months = append(months, MonthCount{Month: key, Count: byMonth[key]})
	}
	return months
}

func yearCounts(byYear map[string]int, now time.Time) []YearCount {
	if len(byYear) == 0 {
		return nil
	}
	first := now.Year()
	for year := range byYear {
		var y int
		if _, err := fmt.Sscanf(year, "%d", &y); err == nil && y < first {
			first = y
		}
	}
	years := make([]YearCount, 0, len(byYear))
	for y := first; y <= now.Year(); y++ {
		key := fmt.Sprintf("%d", y)
		if count, ok := byYear[key]; ok {
			years = append(years, YearCount{Year: key, Count: count})
		}
	}
	return years
}
