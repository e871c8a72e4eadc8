package chat

import (
	"time"
	"unicode/utf8"

	"github.com/Proton-105/alina-bot/internal/persona"
)

const (
	minTypingSeconds = 0.5
	maxTypingSeconds = 3.5
)

// TypingDelay estimates how long a person would type text on a phone. The result is clamped
// to [0.5s, 3.5s] and then to limit when limit is positive.
func TypingDelay(text string, rnd persona.Rand, limit time.Duration) time.Duration {
	n := utf8.RuneCountInString(text)

	var secs float64
	switch {
	case n < 20:
		secs = between(rnd, 0.5, 1.0)
	case n < 50:
		secs = between(rnd, 1.0, 1.8)
	case n < 100:
		secs = between(rnd, 1.8, 2.5)
	default:
		secs = min(maxTypingSeconds, float64(n)/35.0) + between(rnd, -0.2, 0.3)
	}
	secs = max(minTypingSeconds, min(maxTypingSeconds, secs))

	d := time.Duration(secs * float64(time.Second))
	if limit > 0 && d > limit {
		return limit
	}
	return d
}

func between(rnd persona.Rand, lo, hi float64) float64 {
	if rnd == nil {
		return lo
	}
	return lo + rnd.Float64()*(hi-lo)
}
