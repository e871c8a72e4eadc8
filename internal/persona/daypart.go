package persona

// DayPart describes Alina's energy at a given local hour.
type DayPart struct {
	Name    string
	Energy  string
	Mood    string
	Details []string
}

var dayPartNames = []string{"early_morning", "morning", "lunch", "afternoon", "evening", "night"}

func dayPartName(hour int) string {
	switch {
	case hour >= 5 && hour < 9:
		return "early_morning"
	case hour >= 9 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 14:
		return "lunch"
	case hour >= 14 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

// DayPartAt returns the day part for a local hour (0-23).
func (c *Classifier) DayPartAt(hour int) DayPart {
	name := dayPartName(hour)
	t := c.store.Tables().DayParts[name]
	return DayPart{Name: name, Energy: t.Energy, Mood: t.Mood, Details: t.Details}
}

// Detail picks one flavor line; a nil rnd picks the first.
func (d DayPart) Detail(rnd Rand) string {
	if len(d.Details) == 0 {
		return ""
	}
	if rnd == nil {
		return d.Details[0]
	}
	return d.Details[rnd.Intn(len(d.Details))]
}
