package scoring

import (
	"math"
	"time"
)

const (
	// BasePoints is awarded for every correct answer.
	BasePoints = 100
	// SpeedWeight scales the speed bonus relative to BasePoints.
	SpeedWeight = 0.5
	// StreakBonus is awarded per consecutive correct answer.
	StreakBonus = 15
	// StreakCap bounds the streak used for the bonus.
	StreakCap = 10
	// PartialWeight discounts partial ordering credit.
	PartialWeight = 0.5
)

// Score returns the point delta for one answer. streak is the streak after
// this answer has been counted.
func Score(correct bool, elapsed, limit time.Duration, streak int) int {
	if !correct {
		return 0
	}

	speed := 0.0
	if limit > 0 {
		speed = clamp(1-float64(elapsed)/float64(limit), 0, 1)
	}
	if streak < 0 {
		streak = 0
	}
	if streak > StreakCap {
		streak = StreakCap
	}

	points := BasePoints + BasePoints*SpeedWeight*speed + float64(StreakBonus*streak)
	return int(math.Round(points))
}

// Partial returns the flat discounted bonus for a partially correct ordering.
// Partial answers never receive speed or streak bonuses.
func Partial(partialScore float64) int {
	partialScore = clamp(partialScore, 0, 1)
	return int(math.Round(BasePoints * partialScore * PartialWeight))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
