package vetted

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"layai/searchservice/internal/domain"
)

// MemoryStore is an in-process dataset, normally seeded from a YAML file.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles []domain.Profile
}

func NewMemoryStore(profiles []domain.Profile) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(profiles)
	return s
}

func (s *MemoryStore) Replace(profiles []domain.Profile) {
	prepared := make([]domain.Profile, 0, len(profiles))
	for _, p := range profiles {
		if strings.TrimSpace(p.URL) == "" {
			continue
		}
		prepared = append(prepared, prepare(p))
	}
	s.mu.Lock()
	s.profiles = prepared
	s.mu.Unlock()
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

func (s *MemoryStore) Query(ctx context.Context, filter domain.VettedFilter) ([]domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]domain.Profile, 0)
	for _, p := range s.profiles {
		if matches(p, filter) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sortByAudience(out)
	if limit := queryLimit(filter); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type seedProfile struct {
	URL            string   `yaml:"url"`
	Platform       string   `yaml:"platform"`
	Username       string   `yaml:"username"`
	DisplayName    string   `yaml:"displayName"`
	Bio            string   `yaml:"bio"`
	Location       string   `yaml:"location"`
	Country        string   `yaml:"country"`
	Gender         string   `yaml:"gender"`
	Age            int      `yaml:"age"`
	Niches         []string `yaml:"niches"`
	Followers      int64    `yaml:"followers"`
	Following      int64    `yaml:"following"`
	Posts          int64    `yaml:"posts"`
	EngagementRate float64  `yaml:"engagementRate"`
	Verified       bool     `yaml:"verified"`
}

type seedFile struct {
	Profiles []seedProfile `yaml:"profiles"`
}

// LoadSeed reads a YAML dataset file. A missing file yields an empty dataset.
func LoadSeed(path string) ([]domain.Profile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read vetted seed: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) ([]domain.Profile, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse vetted seed: %w", err)
	}
	out := make([]domain.Profile, 0, len(file.Profiles))
	for i, item := range file.Profiles {
		platform := domain.NormalizePlatform(item.Platform)
		if strings.TrimSpace(item.URL) == "" || platform == domain.PlatformUnknown {
			return nil, fmt.Errorf("parse vetted seed: profile %d needs a url and a known platform", i)
		}
		out = append(out, domain.Profile{
			URL:            strings.TrimSpace(item.URL),
			Platform:       platform,
			Username:       strings.TrimPrefix(strings.TrimSpace(item.Username), "@"),
			DisplayName:    item.DisplayName,
			Bio:            item.Bio,
			Location:       item.Location,
			Country:        item.Country,
			Gender:         item.Gender,
			Age:            item.Age,
			Niches:         item.Niches,
			Followers:      item.Followers,
			Following:      item.Following,
			Posts:          item.Posts,
			EngagementRate: item.EngagementRate,
			Verified:       item.Verified,
		})
	}
	return out, nil
}
