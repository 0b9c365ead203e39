package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity returns (max(len) - distance) / max(len) over runes. Two empty strings are identical.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(longest-dist) / float64(longest)
}

func runeLenDiff(a, b string) int {
	d := utf8.RuneCountInString(a) - utf8.RuneCountInString(b)
	if d < 0 {
		return -d
	}
	return d
}

// normalizeName lowercases s and removes all whitespace.
func normalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// splitEmail returns the lowercased local part and domain of an address.
func splitEmail(email string) (local, domain string) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email, ""
	}
	return email[:at], email[at+1:]
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Hangul, unicode.Han, unicode.Hiragana, unicode.Katakana)
}

func isLatinName(tokens []string) bool {
	for _, tok := range tokens {
		for _, r := range tok {
			if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
				return false
			}
		}
	}
	return true
}

// nameVariants returns the lowercase alternative keys generated for a display name.
func nameVariants(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var out []string

	compact := normalizeName(name)
	out = append(out, compact)

	tokens := strings.Fields(strings.ToLower(name))
	if len(tokens) > 1 && isLatinName(tokens) {
		out = append(out, tokens[0], tokens[len(tokens)-1])
	}

	runes := []rune(compact)
	if len(runes) >= 2 && isCJK(runes[0]) {
		out = append(out, string(runes[1:]))
		if len(runes) >= 3 {
			out = append(out, string(runes[0]))
		}
	}
	return out
}

var handlePrefixes = []string{"danal-", "dev-", "user-"}

// patternCandidates derives lookup keys from a lowercase handle in cascade order:
// trailing digits stripped, separators removed, known prefixes removed, and each
// prefix removal followed by a digit strip.
func patternCandidates(handle string) []string {
	if handle == "" {
		return nil
	}
	var out []string
	add := func(s string) {
		if s == "" || s == handle {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}

	add(stripTrailingDigits(handle))
	add(strings.NewReplacer("-", "", "_", "").Replace(handle))
	for _, prefix := range handlePrefixes {
		if rest, ok := strings.CutPrefix(handle, prefix); ok {
			add(rest)
			add(stripTrailingDigits(rest))
		}
	}
	return out
}

// stripTrailingDigits removes trailing ASCII digits when at least three characters remain.
// Otherwise s is returned unchanged.
func stripTrailingDigits(s string) string {
	trimmed := strings.TrimRightFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if utf8.RuneCountInString(trimmed) < 3 {
		return s
	}
	return trimmed
}
