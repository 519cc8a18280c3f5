package model

import (
	"fmt"
	"sort"
	"time"
)

// RunStats aggregates counters for one traversal execution.
// All counters are plain ints because a run has exactly one writer.
type RunStats struct {
	// StartedAt and EndedAt bound the execution.
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// TotalFound counts names claimed for processing.
	TotalFound int `json:"total_items_found"`

	// Successful counts VisitRecords appended.
	Successful int `json:"successful_access"`

	// PermissionDenied counts DeniedRecords.
	PermissionDenied int `json:"permission_denied"`

	// AccessFailed counts FailureRecords.
	AccessFailed int `json:"access_failed"`

	// Skipped counts activations that produced no title or URL.
	Skipped int `json:"skipped"`

	// DepthLimited counts names that were not visited because they lay
	// below the maximum depth.
	DepthLimited int `json:"depth_limited"`

	// Unreached counts names that were not visited because their parent
	// was denied, skipped, or failed.
	Unreached int `json:"unreached"`

	// DelayCount and TotalDelay track RateGovernor waits.
	DelayCount int           `json:"delay_count"`
	TotalDelay time.Duration `json:"total_delay"`

	// LevelCounts maps a 1-based level to the number of visits at that level.
	LevelCounts map[int]int `json:"level_counts"`
}

// NewRunStats returns stats with the start time set to now.
func NewRunStats() *RunStats {
	return &RunStats{
		StartedAt:   time.Now(),
		LevelCounts: make(map[int]int),
	}
}

// RecordVisit counts a successful visit at the given 0-based level.
func (s *RunStats) RecordVisit(level int) {
	if s.LevelCounts == nil {
		s.LevelCounts = make(map[int]int)
	}
	s.Successful++
	s.LevelCounts[level+1]++
}

// RecordDelay accumulates one rate-governor wait.
func (s *RunStats) RecordDelay(d time.Duration) {
	s.DelayCount++
	s.TotalDelay += d
}

// Finish stamps the end time.
func (s *RunStats) Finish() {
	s.EndedAt = time.Now()
}

// Duration returns the elapsed time of the run. An unfinished run is
// measured against now.
func (s *RunStats) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartedAt)
}

// AverageDelay returns the mean rate-governor wait, or 0 without waits.
func (s *RunStats) AverageDelay() time.Duration {
	if s.DelayCount == 0 {
		return 0
	}
	return s.TotalDelay / time.Duration(s.DelayCount)
}

// SuccessRate returns successful visits as a percentage of names found.
func (s *RunStats) SuccessRate() float64 {
	found := s.TotalFound
	if found < 1 {
		found = 1
	}
	return float64(s.Successful) / float64(found) * 100
}

// MaxLevel returns the deepest 1-based level with at least one visit.
func (s *RunStats) MaxLevel() int {
	maxLevel := 0
	for level, n := range s.LevelCounts {
		if n > 0 && level > maxLevel {
			maxLevel = level
		}
	}
	return maxLevel
}

// Levels returns the 1-based levels with visits in ascending order.
func (s *RunStats) Levels() []int {
	levels := make([]int, 0, len(s.LevelCounts))
	for level := range s.LevelCounts {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	return levels
}

// FormatDuration renders d the way operators read run lengths:
// "42.0s", "3m12.5s" or "2h5m".
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1fs", seconds)
	case seconds < 3600:
		minutes := int(seconds) / 60
		return fmt.Sprintf("%dm%.1fs", minutes, seconds-float64(minutes*60))
	default:
		hours := int(seconds) / 3600
		minutes := (int(seconds) % 3600) / 60
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
}
