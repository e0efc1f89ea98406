package scraping

import (
	"time"

	"layai/searchservice/internal/domain"
)

// ModeTable maps each scraping mode to its fixed resource preset.
type ModeTable map[domain.ScrapingMode]domain.ScrapingConfig

func DefaultModes() ModeTable {
	return ModeTable{
		domain.ModeEconomy: {
			Mode:              domain.ModeEconomy,
			MaxProfiles:       15,
			PriorityThreshold: 70,
			Timeout:           30 * time.Second,
			RetryAttempts:     1,
			Parallel:          false,
			FallbackEnabled:   true,
		},
		domain.ModeBalanced: {
			Mode:              domain.ModeBalanced,
			MaxProfiles:       30,
			PriorityThreshold: 60,
			Timeout:           45 * time.Second,
			RetryAttempts:     2,
			Parallel:          true,
			FallbackEnabled:   true,
		},
		domain.ModeComprehensive: {
			Mode:              domain.ModeComprehensive,
			MaxProfiles:       50,
			PriorityThreshold: 45,
			Timeout:           60 * time.Second,
			RetryAttempts:     3,
			Parallel:          true,
			FallbackEnabled:   true,
		},
		domain.ModeUnlimited: {
			Mode:              domain.ModeUnlimited,
			MaxProfiles:       100,
			PriorityThreshold: 30,
			Timeout:           90 * time.Second,
			RetryAttempts:     3,
			Parallel:          true,
			FallbackEnabled:   false,
		},
	}
}

// Merge overlays override presets. Unlimited mode never enables fallback data.
func (t ModeTable) Merge(override ModeTable) ModeTable {
	out := make(ModeTable, len(t))
	for mode, cfg := range t {
		out[mode] = cfg
	}
	for mode, cfg := range override {
		mode = domain.NormalizeScrapingMode(string(mode), "")
		if mode == "" {
			continue
		}
		base := out[mode]
		if cfg.MaxProfiles > 0 {
			base.MaxProfiles = cfg.MaxProfiles
		}
		if cfg.PriorityThreshold > 0 {
			base.PriorityThreshold = cfg.PriorityThreshold
		}
		if cfg.Timeout > 0 {
			base.Timeout = cfg.Timeout
		}
		if cfg.RetryAttempts > 0 {
			base.RetryAttempts = cfg.RetryAttempts
		}
		base.Parallel = cfg.Parallel
		base.FallbackEnabled = cfg.FallbackEnabled && mode != domain.ModeUnlimited
		base.Mode = mode
		out[mode] = base
	}
	return out
}

// Config returns the preset for mode, falling back to balanced.
func (t ModeTable) Config(mode domain.ScrapingMode) domain.ScrapingConfig {
	if cfg, ok := t[mode]; ok {
		return cfg
	}
	if cfg, ok := t[domain.ModeBalanced]; ok {
		return cfg
	}
	return DefaultModes()[domain.ModeBalanced]
}
