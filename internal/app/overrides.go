package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"layai/searchservice/internal/breaker"
	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/prioritize"
	"layai/searchservice/internal/quality"
	"layai/searchservice/internal/scraping"
)

// Overrides tunes the built-in tables without a rebuild. Every section is
// optional; fields left out keep their default.
type Overrides struct {
	Modes       scraping.ModeTable
	Breakers    map[string]breaker.Config
	Prioritizer prioritize.Tables
	Scorer      ScorerOverrides
	Actors      map[domain.Platform]string
}

type ScorerOverrides struct {
	Thresholds   quality.Thresholds `yaml:"thresholds"`
	Weights      map[string]float64 `yaml:"weights"`
	LearningRate float64            `yaml:"learningRate"`
}

type overridesFile struct {
	Modes       map[string]modeOverride   `yaml:"modes"`
	Breakers    map[string]breaker.Config `yaml:"breakers"`
	Prioritizer prioritize.Tables         `yaml:"prioritizer"`
	Scorer      ScorerOverrides           `yaml:"scorer"`
	Actors      map[string]string         `yaml:"actors"`
}

// modeOverride keeps the booleans optional so a file that only changes
// maxProfiles does not switch parallel scraping off.
type modeOverride struct {
	MaxProfiles       int           `yaml:"maxProfiles"`
	PriorityThreshold int           `yaml:"priorityThreshold"`
	Timeout           time.Duration `yaml:"timeout"`
	RetryAttempts     int           `yaml:"retryAttempts"`
	Parallel          *bool         `yaml:"parallel"`
	FallbackEnabled   *bool         `yaml:"fallbackEnabled"`
}

// LoadOverrides reads path. An empty path or a missing file yields empty
// overrides; a file that exists but does not parse is an error.
func LoadOverrides(path string) (Overrides, error) {
	if path == "" {
		return Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Overrides{}, nil
	}
	if err != nil {
		return Overrides{}, fmt.Errorf("read overrides: %w", err)
	}
	return ParseOverrides(data)
}

func ParseOverrides(data []byte) (Overrides, error) {
	var file overridesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Overrides{}, fmt.Errorf("parse overrides: %w", err)
	}

	out := Overrides{
		Prioritizer: file.Prioritizer,
		Scorer:      file.Scorer,
	}

	defaults := scraping.DefaultModes()
	if len(file.Modes) > 0 {
		out.Modes = make(scraping.ModeTable, len(file.Modes))
	}
	for raw, override := range file.Modes {
		mode := domain.NormalizeScrapingMode(raw, "")
		if mode == "" {
			return Overrides{}, fmt.Errorf("parse overrides: unknown scraping mode %q", raw)
		}
		base := defaults[mode]
		cfg := domain.ScrapingConfig{
			MaxProfiles:       override.MaxProfiles,
			PriorityThreshold: override.PriorityThreshold,
			Timeout:           override.Timeout,
			RetryAttempts:     override.RetryAttempts,
			Parallel:          base.Parallel,
			FallbackEnabled:   base.FallbackEnabled,
		}
		if override.Parallel != nil {
			cfg.Parallel = *override.Parallel
		}
		if override.FallbackEnabled != nil {
			cfg.FallbackEnabled = *override.FallbackEnabled
		}
		out.Modes[mode] = cfg
	}

	presets := breaker.DefaultPresets()
	if len(file.Breakers) > 0 {
		out.Breakers = make(map[string]breaker.Config, len(file.Breakers))
	}
	for class, override := range file.Breakers {
		base, ok := presets[class]
		if !ok {
			return Overrides{}, fmt.Errorf("parse overrides: unknown breaker class %q", class)
		}
		if override.FailureThreshold > 0 {
			base.FailureThreshold = override.FailureThreshold
		}
		if override.ResetTimeout > 0 {
			base.ResetTimeout = override.ResetTimeout
		}
		if override.MonitoringPeriod > 0 {
			base.MonitoringPeriod = override.MonitoringPeriod
		}
		out.Breakers[class] = base
	}

	if len(file.Actors) > 0 {
		out.Actors = make(map[domain.Platform]string, len(file.Actors))
	}
	for raw, actor := range file.Actors {
		platform := domain.NormalizePlatform(raw)
		if platform == domain.PlatformUnknown {
			return Overrides{}, fmt.Errorf("parse overrides: unknown platform %q", raw)
		}
		out.Actors[platform] = actor
	}
	return out, nil
}

func (o Overrides) ModeTable() scraping.ModeTable {
	return scraping.DefaultModes().Merge(o.Modes)
}

func (o Overrides) PrioritizerTables() prioritize.Tables {
	return prioritize.DefaultTables().Merge(o.Prioritizer)
}

// ScorerOptions returns the scorer options for the configured thresholds and
// learning rate. Weights are applied with SetWeights after construction
// because an unknown feature name is an error there.
func (o Overrides) ScorerOptions() []quality.Option {
	opts := []quality.Option{quality.WithThresholds(o.Scorer.Thresholds)}
	if o.Scorer.LearningRate > 0 {
		opts = append(opts, quality.WithLearningRate(o.Scorer.LearningRate))
	}
	return opts
}
