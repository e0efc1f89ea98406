// Package textnorm folds free text for keyword matching and cache keys.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Fold lower-cases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Tokens returns the folded letter/digit runs of s.
func Tokens(s string) []string {
	return tokenPattern.FindAllString(Fold(s), -1)
}

// Compact folds s and drops everything that is not a letter or digit, so
// "Coca-Cola" and "cocacola" compare equal.
func Compact(s string) string {
	return strings.Join(Tokens(s), "")
}

// ContainsAny reports whether folded haystack contains any folded needle.
func ContainsAny(haystack string, needles ...string) bool {
	h := Fold(haystack)
	if h == "" {
		return false
	}
	for _, needle := range needles {
		n := Fold(needle)
		if n != "" && strings.Contains(h, n) {
			return true
		}
	}
	return false
}

// FoldAll folds, deduplicates and drops empty values, preserving order.
func FoldAll(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, raw := range values {
		value := Fold(raw)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
