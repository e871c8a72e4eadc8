package persona

// Rand is the randomness source used by the heuristics. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

const (
	fatigueThreshold   = 5
	fatigueProbability = 0.3
)

// Fatigue returns a redirect line when a topic was discussed more than five times and the
// 30% draw succeeds. Topics are visited in table order; each overused topic gets one draw.
func (c *Classifier) Fatigue(counts map[string]int, rnd Rand) (string, bool) {
	if rnd == nil || len(counts) == 0 {
		return "", false
	}

	for _, b := range c.store.Tables().Topics {
		if b.Fatigue == "" || counts[string(b.Name)] <= fatigueThreshold {
			continue
		}
		if rnd.Float64() < fatigueProbability {
			return b.Fatigue, true
		}
	}
	return "", false
}
