package scraping

import (
	"fmt"
	"time"

	"layai/searchservice/internal/domain"
)

const (
	lowSuccessRate    = 0.5
	slowRun           = 60 * time.Second
	lowAverageQuality = 50.0
)

// Recommend derives user-facing advice from one run's stats.
func Recommend(cfg domain.ScrapingConfig, stats Stats) []string {
	var out []string

	if stats.TotalFound > 0 && stats.Qualified == 0 {
		out = append(out, fmt.Sprintf("No candidate reached the %s mode priority threshold of %d; try a less restrictive mode.", cfg.Mode, cfg.PriorityThreshold))
	}
	if stats.Planned > 0 && stats.SuccessRate < lowSuccessRate {
		out = append(out, fmt.Sprintf("Low scraping success rate (%.0f%%); try a less restrictive mode%s.", stats.SuccessRate*100, lessRestrictive(cfg.Mode)))
	}
	if stats.TimeSpent > slowRun && cfg.Mode != domain.ModeEconomy {
		out = append(out, "Long processing time; use economy mode for faster results.")
	}
	if stats.Qualified > stats.Planned && cfg.Mode != domain.ModeUnlimited {
		out = append(out, fmt.Sprintf("%d qualifying profiles were left unscraped by the %s budget; a larger mode can cover them.", stats.Qualified-stats.Planned, cfg.Mode))
	}
	if stats.Estimated > 0 {
		out = append(out, fmt.Sprintf("%d profiles carry estimated metrics because scraping was unavailable; verify them before outreach.", stats.Estimated))
	}
	if stats.TotalScraped+stats.Estimated > 0 && stats.QualityScore < lowAverageQuality {
		out = append(out, "Average profile quality is low; add brand or niche keywords to sharpen discovery.")
	}
	return out
}

func lessRestrictive(mode domain.ScrapingMode) string {
	switch mode {
	case domain.ModeEconomy:
		return " such as balanced"
	case domain.ModeBalanced:
		return " such as comprehensive"
	case domain.ModeComprehensive:
		return " such as unlimited"
	default:
		return ""
	}
}
