package achievement

import (
	"sort"
	"time"
)

// MaxConsecutiveDays computes the longest run of consecutive calendar days
// among the given timestamps, including the final open run. Timestamps are
// bucketed by UTC calendar date; time-of-day is ignored.
//
// Dates [D, D+1, D+2] followed by a gap and [D+10] yield 3.
func MaxConsecutiveDays(timestamps []time.Time) int {
	if len(timestamps) == 0 {
		return 0
	}

	seen := make(map[time.Time]bool, len(timestamps))
	for _, ts := range timestamps {
		day := ts.UTC().Truncate(24 * time.Hour)
		seen[day] = true
	}

	days := make([]time.Time, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	maxRun := 1
	run := 1
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			run++
		} else {
			if run > maxRun {
				maxRun = run
			}
			run = 1
		}
	}
	if run > maxRun {
		maxRun = run
	}
	return maxRun
}
