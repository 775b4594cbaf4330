package engine

import (
	"math"
	"time"
)

const (
	growthBase = 1.0024
	growthRate = 1.0718

	// MinMultiplier is the displayed floor; a round never shows below 1.00x.
	MinMultiplier = 1.00
)

// Predict maps elapsed seconds since round start to the displayed multiplier.
// Pure and monotone for elapsed >= 0; the only state the caller needs is the
// round's start timestamp.
func Predict(elapsedSeconds float64) float64 {
	if elapsedSeconds < 0 {
		return MinMultiplier
	}
	mult := growthBase * math.Pow(growthRate, elapsedSeconds)
	mult = math.Round(mult*100) / 100
	if mult < MinMultiplier {
		return MinMultiplier
	}
	return mult
}

// serverTick remembers the last advisory multiplier pushed by the server.
// Server values anchor the display while fresh; prediction fills the gaps.
type serverTick struct {
	value      float64
	receivedAt time.Time
}

// displayValue picks between the fresh server value and the local prediction.
func (t serverTick) displayValue(now, startedAt time.Time, freshFor time.Duration) float64 {
	if !t.receivedAt.IsZero() && now.Sub(t.receivedAt) <= freshFor {
		return t.value
	}
	return Predict(now.Sub(startedAt).Seconds())
}
