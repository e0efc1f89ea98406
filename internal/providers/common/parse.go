package common

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// CleanHTMLText unescapes entities, strips tags and collapses whitespace in
// titles and snippets returned by search APIs.
func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// ParseHumanCount reads abbreviated audience counts such as "12.5K", "1,2M",
// "3 mil" or "15 тыс". Plain numbers may use "," or "." as thousands
// separators. It returns 0 for anything it cannot read.
func ParseHumanCount(raw string) int64 {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.TrimSuffix(value, "+")
	if value == "" {
		return 0
	}

	multiplier := float64(1)
	for _, unit := range []struct {
		suffix string
		factor float64
	}{
		{"mil", 1_000},
		{"тыс", 1_000},
		{"млн", 1_000_000},
		{"k", 1_000},
		{"m", 1_000_000},
		{"b", 1_000_000_000},
	} {
		if strings.HasSuffix(value, unit.suffix) {
			multiplier = unit.factor
			value = strings.TrimSpace(strings.TrimSuffix(value, unit.suffix))
			break
		}
	}
	value = strings.ReplaceAll(value, " ", "")

	if multiplier == 1 {
		value = strings.NewReplacer(",", "", ".", "").Replace(value)
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed < 0 {
			return 0
		}
		return parsed
	}

	parsed, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil || parsed < 0 {
		return 0
	}
	return int64(parsed*multiplier + 0.5)
}
