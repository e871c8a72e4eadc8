package reply

import (
	"strings"
	"unicode/utf8"

	"github.com/Proton-105/alina-bot/internal/persona"
)

const (
	zeroWidthJoiner = '\u200d'
	variationSel16  = '\ufe0f'
	keycapMark      = '\u20e3'
)

func isEmojiBase(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2300 && r <= 0x23FF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	case r == 0x3030 || r == 0x303D || r == 0x3297 || r == 0x3299:
		return true
	}
	return false
}

func isModifier(r rune) bool {
	return r == variationSel16 || (r >= 0x1F3FB && r <= 0x1F3FF) || (r >= 0xE0020 && r <= 0xE007F)
}

func isRegionalIndicator(r rune) bool {
	return r >= 0x1F1E6 && r <= 0x1F1FF
}

// keycapSpan returns the byte length of a keycap such as 1️⃣ at the start of s, or 0.
// The variation selector is optional.
func keycapSpan(s string) int {
	if s == "" || !strings.ContainsRune("0123456789#*", rune(s[0])) {
		return 0
	}
	n := 1
	if r, sz := utf8.DecodeRuneInString(s[n:]); r == variationSel16 {
		n += sz
	}
	if r, sz := utf8.DecodeRuneInString(s[n:]); r == keycapMark {
		return n + sz
	}
	return 0
}

// emojiSpan returns the byte length of the emoji cluster starting at s, or 0.
// Modifiers, ZWJ sequences, keycaps and flag pairs count as one emoji.
func emojiSpan(s string) int {
	if n := keycapSpan(s); n > 0 {
		return n
	}

	r, size := utf8.DecodeRuneInString(s)
	if !isEmojiBase(r) {
		return 0
	}
	n := size

	if isRegionalIndicator(r) {
		if next, sz := utf8.DecodeRuneInString(s[n:]); isRegionalIndicator(next) {
			n += sz
		}
		return n
	}

	for n < len(s) {
		next, sz := utf8.DecodeRuneInString(s[n:])
		switch {
		case isModifier(next):
			n += sz
		case next == zeroWidthJoiner:
			after, asz := utf8.DecodeRuneInString(s[n+sz:])
			if !isEmojiBase(after) {
				return n
			}
			n += sz + asz
		default:
			return n
		}
	}
	return n
}

// CountEmoji returns the number of emoji clusters in text.
func CountEmoji(text string) int {
	count := 0
	for i := 0; i < len(text); {
		if span := emojiSpan(text[i:]); span > 0 {
			count++
			i += span
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return count
}

// LimitEmoji keeps the first max emoji and drops the rest. max <= 0 removes all of them.
func LimitEmoji(text string, max int) string {
	if max < 0 {
		max = 0
	}

	var b strings.Builder
	b.Grow(len(text))
	kept, removed := 0, 0

	for i := 0; i < len(text); {
		if span := emojiSpan(text[i:]); span > 0 {
			if kept < max {
				b.WriteString(text[i : i+span])
				kept++
			} else {
				removed++
			}
			i += span
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		b.WriteString(text[i : i+size])
		i += size
	}

	if removed == 0 {
		return text
	}
	return tidySpaces(b.String())
}

// EmojiBudget is how many emoji the next reply may carry: none for delicate or technical
// conversations or right after a reply that already had one, otherwise one.
func EmojiBudget(emotion persona.Emotion, tech, lastReplyHadEmoji bool) int {
	if emotion.Delicate() || tech || lastReplyHadEmoji {
		return 0
	}
	return 1
}

func tidySpaces(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		line = strings.NewReplacer(" .", ".", " ,", ",", " !", "!", " ?", "?").Replace(line)
		lines[i] = line
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
