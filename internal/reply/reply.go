// Package reply post-processes model output before it is sent to a user.
package reply

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	selfPrefixes = []string{"алина:", "алина —", "алина -", "алина –", "alina:", "alina —", "alina -"}

	inlineNumbered = regexp.MustCompile(`(\S)[ \t]+(\d{1,2}[.)][ \t]+)`)
	inlineBullet   = regexp.MustCompile(`([.!?:;…])[ \t]+([-*•][ \t]+)`)
	inlineDot      = regexp.MustCompile(`(\S)[ \t]+(•[ \t]+)`)
	manyNewlines   = regexp.MustCompile(`\n{3,}`)
)

// Clean applies the standard pipeline: self-attribution strip, list layout and newline collapse.
func Clean(text string) string {
	text = StripSelfAttribution(text)
	text = SplitLists(text)
	return strings.TrimSpace(CollapseNewlines(text))
}

// StripSelfAttribution removes a leading "Алина:" style speaker label together with the
// dashes or colons after it. Text without the label keeps its leading dash.
func StripSelfAttribution(text string) string {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)

	for _, p := range selfPrefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(strings.TrimLeft(t[len(p):], "—–-: "))
		}
	}
	return t
}

// SplitLists moves inline numbered or bulleted items onto their own lines.
func SplitLists(text string) string {
	text = inlineNumbered.ReplaceAllString(text, "$1\n$2")
	text = inlineBullet.ReplaceAllString(text, "$1\n$2")
	return inlineDot.ReplaceAllString(text, "$1\n$2")
}

// CollapseNewlines turns three or more consecutive newlines into a blank line.
func CollapseNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return manyNewlines.ReplaceAllString(text, "\n\n")
}

// StripNameAddress removes a leading address by the user's Telegram first name, last name or
// @username. The name the user asked to be called stays allowed.
func StripNameAddress(text, firstName, lastName, username, storedName string) string {
	if text == "" {
		return text
	}

	allowed := strings.ToLower(strings.TrimSpace(storedName))
	candidates := []string{strings.TrimSpace(firstName), strings.TrimSpace(lastName)}
	if u := strings.TrimSpace(username); u != "" {
		candidates = append(candidates, "@"+strings.TrimPrefix(u, "@"))
	}

	banned := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" || strings.ToLower(c) == allowed {
			continue
		}
		banned = append(banned, regexp.QuoteMeta(c))
	}
	if len(banned) == 0 {
		return text
	}

	sort.Slice(banned, func(i, j int) bool { return len(banned[i]) > len(banned[j]) })
	re, err := regexp.Compile(`(?i)^\s*(?:` + strings.Join(banned, "|") + `)\s*[,:\-–—]\s*`)
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, "")
}

// Truncate shortens text to at most max runes, cutting at the last sentence end when one
// exists past the halfway mark, otherwise at the last space with an ellipsis.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}

	runes := []rune(text)
	head := string(runes[:max])

	if cut := lastSentenceEnd(head); cut > 0 && utf8.RuneCountInString(head[:cut]) >= max/2 {
		return strings.TrimSpace(head[:cut])
	}
	if idx := strings.LastIndexAny(head, " \n"); idx > 0 {
		head = head[:idx]
	}
	return strings.TrimRight(head, " ,;:—-") + "…"
}

func lastSentenceEnd(s string) int {
	best := -1
	for _, mark := range []string{". ", "! ", "? ", "… ", ".\n", "!\n", "?\n", "\n\n"} {
		if idx := strings.LastIndex(s, mark); idx >= 0 {
			end := idx + len(strings.TrimRight(mark, " \n"))
			if end > best {
				best = end
			}
		}
	}
	for _, mark := range []string{".", "!", "?", "…"} {
		if strings.HasSuffix(s, mark) && len(s) > best {
			best = len(s)
		}
	}
	return best
}
