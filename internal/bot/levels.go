// Package bot holds the presentation helpers for score output: level math,
// progress, and human-readable score formatting.
package bot

import (
	"fmt"
	"math"
	"strings"
)

const (
	levelBase     = 1000.0
	levelExponent = 1.5
	progressSlots = 10
)

// UserScore wraps a cumulative score for display.
type UserScore struct {
	score float64
}

func NewUserScore(score float64) UserScore {
	return UserScore{score: score}
}

// Level maps the score onto a fractional level; the score needed for level
// L is L^1.5 * 1000, so the curve flattens as levels grow.
func (s UserScore) Level() float64 {
	if s.score <= 0 {
		return 0
	}

	return math.Pow(s.score/levelBase, 1/levelExponent)
}

// Progress reports completion of the current level as a percentage.
func (s UserScore) Progress() float64 {
	level := s.Level()

	return (level - math.Floor(level)) * 100
}

// ProgressBar renders progress as a ten-slot bar, one slot per 10%.
func (s UserScore) ProgressBar() string {
	completed := int(s.Progress() / progressSlots)
	remaining := progressSlots - completed

	return fmt.Sprintf("[%s>%s]", strings.Repeat("=", completed), strings.Repeat(" ", remaining))
}

// Display renders the level line shown to users:
// "Level: 3.2 - 5.8K / 8.0K [23.57%]".
func (s UserScore) Display() string {
	level := s.Level()
	score, suffix := formatNum(s.score)

	nextLevelScore := math.Pow(level+1, levelExponent) * levelBase
	next, nextSuffix := formatNum(nextLevelScore)

	return fmt.Sprintf("Level: %.1f - %.1f%s / %.1f%s [%.2f%%]",
		level, score, suffix, next, nextSuffix, s.Progress())
}

// formatNum shortens large numbers with K/M/B/T/Q suffixes.
func formatNum(num float64) (float64, string) {
	var (
		suffix  string
		divisor float64
	)

	switch n := int64(num); {
	case n < 1_000:
		suffix, divisor = "", 1
	case n < 1_000_000:
		suffix, divisor = "K", 1_000
	case n < 1_000_000_000:
		suffix, divisor = "M", 1_000_000
	case n < 1_000_000_000_000:
		suffix, divisor = "B", 1_000_000_000
	case n < 1_000_000_000_000_000:
		suffix, divisor = "T", 1_000_000_000_000
	case n < 1_000_000_000_000_000_000:
		suffix, divisor = "Q", 1_000_000_000_000_000
	default:
		suffix, divisor = "", 1
	}

	return num / divisor, suffix
}
