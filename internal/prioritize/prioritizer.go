// Package prioritize ranks discovered profile URLs before any scraping budget
// is spent on them.
package prioritize

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/textnorm"
)

const (
	weightUsername     = 0.3
	weightPlatform     = 0.2
	weightBrand        = 0.25
	weightNiche        = 0.2
	weightGeo          = 0.15
	weightVerification = 0.1

	weightTotal = weightUsername + weightPlatform + weightBrand + weightNiche + weightGeo + weightVerification

	// neutralScore is used for criteria the search does not ask for.
	neutralScore = 50.0
)

type Score struct {
	Priority  int
	Quality   int
	Relevance int
	Reasons   []string
}

type Prioritizer struct {
	tables Tables
}

func New(tables Tables) *Prioritizer {
	return &Prioritizer{tables: foldTables(tables)}
}

func foldTables(t Tables) Tables {
	out := Tables{
		PlatformPreference: make(map[domain.Platform]int, len(t.PlatformPreference)),
		BrandKeywords:      make(map[string][]string, len(t.BrandKeywords)),
		NicheKeywords:      make(map[string][]string, len(t.NicheKeywords)),
		LocationCodes:      make(map[string][]string, len(t.LocationCodes)),
		PlaceholderWords:   textnorm.FoldAll(t.PlaceholderWords),
		PositiveIndicators: textnorm.FoldAll(t.PositiveIndicators),
		NegativeIndicators: textnorm.FoldAll(t.NegativeIndicators),
	}
	for k, v := range t.PlatformPreference {
		out.PlatformPreference[k] = v
	}
	for k, v := range t.BrandKeywords {
		out.BrandKeywords[textnorm.Fold(k)] = textnorm.FoldAll(v)
	}
	for k, v := range t.NicheKeywords {
		out.NicheKeywords[textnorm.Fold(k)] = textnorm.FoldAll(v)
	}
	for k, v := range t.LocationCodes {
		out.LocationCodes[textnorm.Fold(k)] = textnorm.FoldAll(v)
	}
	return out
}

// candidateText is the folded material every keyword sub-score matches against.
type candidateText struct {
	handle  string
	compact string
	text    string
	tokens  map[string]struct{}
}

func newCandidateText(c domain.CandidateProfile) candidateText {
	text := textnorm.Fold(strings.Join([]string{c.Handle, c.Title, c.Snippet}, " "))
	tokens := make(map[string]struct{})
	for _, token := range textnorm.Tokens(text) {
		tokens[token] = struct{}{}
	}
	return candidateText{
		handle:  textnorm.Fold(c.Handle),
		compact: textnorm.Compact(c.Handle),
		text:    text,
		tokens:  tokens,
	}
}

// matches treats short keywords ("es", "uk") as whole tokens and longer ones
// as substrings.
func (ct candidateText) matches(keyword string) bool {
	if keyword == "" {
		return false
	}
	if len([]rune(keyword)) <= 3 {
		_, ok := ct.tokens[keyword]
		return ok
	}
	return strings.Contains(ct.text, keyword)
}

func (ct candidateText) handleContains(keyword string) bool {
	keyword = textnorm.Compact(keyword)
	if len([]rune(keyword)) < 3 {
		return false
	}
	return strings.Contains(ct.compact, keyword)
}

// Score computes the priority of one candidate for params. It is pure.
func (p *Prioritizer) Score(c domain.CandidateProfile, params domain.SearchParams) Score {
	ct := newCandidateText(c)
	var reasons []string
	add := func(reason string) {
		if reason != "" {
			reasons = append(reasons, reason)
		}
	}

	username, reason := p.usernameScore(ct)
	add(reason)
	platform, reason := p.platformScore(c.Platform, params)
	add(reason)
	brand, reason := p.brandScore(ct, params.BrandName)
	add(reason)
	niche, reason := p.nicheScore(ct, params.Niches)
	add(reason)
	geo, reason := p.geoScore(ct, params.Location)
	add(reason)
	verification, reason := p.verificationScore(ct)
	add(reason)

	weighted := username*weightUsername +
		platform*weightPlatform +
		brand*weightBrand +
		niche*weightNiche +
		geo*weightGeo +
		verification*weightVerification

	return Score{
		Priority:  clampRound(weighted / weightTotal),
		Quality:   clampRound(0.6*username + 0.4*verification),
		Relevance: clampRound(0.5*brand + 0.5*niche),
		Reasons:   reasons,
	}
}

// Rank scores every candidate and returns them sorted by priority descending.
func (p *Prioritizer) Rank(candidates []domain.CandidateProfile, params domain.SearchParams) []domain.CandidateProfile {
	out := make([]domain.CandidateProfile, 0, len(candidates))
	for _, c := range candidates {
		score := p.Score(c, params)
		c.PriorityScore = score.Priority
		c.QualityScore = score.Quality
		c.EstimatedRelevance = score.Relevance
		c.Reasons = score.Reasons
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		if out[i].QualityScore != out[j].QualityScore {
			return out[i].QualityScore > out[j].QualityScore
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// Filter drops candidates below threshold, keeping order.
func Filter(candidates []domain.CandidateProfile, threshold int) []domain.CandidateProfile {
	out := make([]domain.CandidateProfile, 0, len(candidates))
	for _, c := range candidates {
		if c.PriorityScore >= threshold {
			out = append(out, c)
		}
	}
	return out
}

func (p *Prioritizer) usernameScore(ct candidateText) (float64, string) {
	handle := ct.compact
	if handle == "" {
		return 0, "missing username"
	}

	score := 50.0
	n := len([]rune(handle))
	switch {
	case n < 3 || n > 30:
		score -= 30
	case n >= 5 && n <= 20:
		score += 20
	default:
		score += 5
	}

	digits := 0
	for _, r := range handle {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	switch {
	case digits == n:
		score -= 40
	case float64(digits)/float64(n) > 0.4:
		score -= 20
	case digits == 0:
		score += 10
	}

	separators := strings.Count(ct.handle, "_") + strings.Count(ct.handle, ".") + strings.Count(ct.handle, "-")
	if separators > 2 {
		score -= 10
	}

	for _, word := range p.tables.PlaceholderWords {
		if strings.Contains(handle, word) {
			score -= 30
			return clamp(score), "placeholder-like username"
		}
	}

	if score >= 70 {
		return clamp(score), "username looks authentic"
	}
	return clamp(score), ""
}

func (p *Prioritizer) platformScore(platform domain.Platform, params domain.SearchParams) (float64, string) {
	base, ok := p.tables.PlatformPreference[platform]
	if !ok {
		base = 30
	}
	score := float64(base)
	if len(params.Platforms) == 0 {
		return clamp(score), ""
	}
	if params.HasPlatform(platform) {
		return clamp(score + 20), "requested platform"
	}
	return clamp(score - 30), "platform not requested"
}

func (p *Prioritizer) brandScore(ct candidateText, brandName string) (float64, string) {
	brand := textnorm.Fold(brandName)
	if brand == "" {
		return neutralScore, ""
	}
	keywords := append([]string{brand}, p.tables.BrandKeywords[brand]...)

	for _, keyword := range keywords {
		if ct.handleContains(keyword) {
			return 100, "brand keyword in handle"
		}
	}
	for _, keyword := range keywords {
		if ct.matches(keyword) {
			return 75, "brand keyword in profile text"
		}
	}
	return 25, ""
}

func (p *Prioritizer) nicheScore(ct candidateText, niches []string) (float64, string) {
	if len(niches) == 0 {
		return neutralScore, ""
	}
	matched := 0
	for _, raw := range niches {
		niche := textnorm.Fold(raw)
		keywords := append([]string{niche}, p.tables.NicheKeywords[niche]...)
		for _, keyword := range keywords {
			if ct.matches(keyword) || ct.handleContains(keyword) {
				matched++
				break
			}
		}
	}
	score := 20 + 80*float64(matched)/float64(len(niches))
	if matched == 0 {
		return score, ""
	}
	return score, "niche keywords matched"
}

func (p *Prioritizer) geoScore(ct candidateText, location string) (float64, string) {
	loc := textnorm.Fold(location)
	if loc == "" {
		return neutralScore, ""
	}
	codes := append([]string{loc}, p.tables.LocationCodes[loc]...)
	for _, code := range codes {
		if ct.matches(code) {
			return 100, "location match"
		}
	}
	return 40, ""
}

func (p *Prioritizer) verificationScore(ct candidateText) (float64, string) {
	score := neutralScore
	reason := ""
	for _, word := range p.tables.PositiveIndicators {
		if ct.matches(word) {
			score += 25
			reason = "verification indicator"
		}
	}
	for _, word := range p.tables.NegativeIndicators {
		if ct.matches(word) {
			score -= 40
			reason = "suspicious indicator"
		}
	}
	return clamp(score), reason
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func clampRound(v float64) int {
	return int(math.Round(clamp(v)))
}
