// Package quality classifies profiles as influencer, brand or generic
// accounts and adapts its feature weights from user feedback.
package quality

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/textnorm"
)

const (
	DefaultLearningRate = 1.0
	MaxWeight           = 50.0
	MinWeight           = 0.5
	AccuracyWindow      = 100
)

// Weights is indexed by Feature.
type Weights [featureCount]float64

func DefaultWeights() Weights {
	var w Weights
	w[RealName] = 15
	w[PersonalBio] = 15
	w[CreatorKeywords] = 25
	w[HealthyRatio] = 15
	w[HighEngagement] = 20
	w[VerifiedAccount] = 10
	w[SubstantialBio] = 10
	w[BrandKeywords] = 25
	w[BusinessBio] = 20
	w[Promotional] = 15
	w[BusinessAccount] = 20
	w[GenericUsername] = 25
	w[NoBio] = 15
	w[LowRatio] = 15
	w[LowEngagement] = 10
	w[HighFollowing] = 15
	return w
}

type Thresholds struct {
	Influencer float64 `json:"influencer" yaml:"influencer"`
	Brand      float64 `json:"brand" yaml:"brand"`
	Generic    float64 `json:"generic" yaml:"generic"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Influencer: 50, Brand: 50, Generic: 60}
}

func (t Thresholds) For(category domain.Category) float64 {
	switch category {
	case domain.CategoryInfluencer:
		return t.Influencer
	case domain.CategoryBrand:
		return t.Brand
	default:
		return t.Generic
	}
}

// Context carries search-level hints into feature extraction.
type Context struct {
	BrandName string
}

// isBrandHandle reports whether handle is the searched brand's own account.
func (c Context) isBrandHandle(handle string) bool {
	brand := textnorm.Compact(c.BrandName)
	if brand == "" || handle == "" {
		return false
	}
	h := textnorm.Compact(handle)
	return h == brand || h == brand+"official" || h == "official"+brand || strings.HasPrefix(h, brand+"store") || strings.HasPrefix(h, brand+"shop")
}

type Option func(*Scorer)

func WithThresholds(t Thresholds) Option {
	return func(s *Scorer) {
		if t.Influencer > 0 {
			s.thresholds.Influencer = t.Influencer
		}
		if t.Brand > 0 {
			s.thresholds.Brand = t.Brand
		}
		if t.Generic > 0 {
			s.thresholds.Generic = t.Generic
		}
	}
}

func WithLearningRate(rate float64) Option {
	return func(s *Scorer) {
		if rate > 0 {
			s.learningRate = rate
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAccuracyObserver is called with the rolling accuracy after each feedback.
func WithAccuracyObserver(fn func(float64)) Option {
	return func(s *Scorer) {
		s.onAccuracy = fn
	}
}

type Scorer struct {
	mu           sync.RWMutex
	weights      Weights
	thresholds   Thresholds
	learningRate float64
	outcomes     []bool
	next         int
	feedbacks    int64
	logger       *slog.Logger
	onAccuracy   func(float64)
}

func New(opts ...Option) *Scorer {
	s := &Scorer{
		weights:      DefaultWeights(),
		thresholds:   DefaultThresholds(),
		learningRate: DefaultLearningRate,
		outcomes:     make([]bool, 0, AccuracyWindow),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decide extracts features from p and classifies them.
func (s *Scorer) Decide(p domain.Profile, ctx Context) domain.Decision {
	return s.DecideFeatures(Extract(p, ctx))
}

func (s *Scorer) DecideFeatures(f Features) domain.Decision {
	s.mu.RLock()
	weights := s.weights
	thresholds := s.thresholds
	s.mu.RUnlock()

	raw := make(map[domain.Category]float64, len(domain.Categories))
	total := 0.0
	for _, feature := range f.Present() {
		raw[feature.Category()] += weights[feature]
		total += weights[feature]
	}

	scores := make(map[domain.Category]float64, len(domain.Categories))
	for _, category := range domain.Categories {
		if total > 0 {
			scores[category] = math.Round(raw[category]/total*1000) / 10
		} else {
			scores[category] = 0
		}
	}

	if total == 0 {
		return domain.Decision{
			Category:   domain.CategoryGeneric,
			Confidence: 0,
			RiskLevel:  domain.RiskHigh,
			Reason:     "no usable profile signals",
			Scores:     scores,
		}
	}

	ordered := append([]domain.Category(nil), domain.Categories...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return scores[ordered[i]] > scores[ordered[j]]
	})

	winner := ordered[0]
	meetsThreshold := false
	for _, category := range ordered {
		if scores[category] >= thresholds.For(category) {
			winner = category
			meetsThreshold = true
			break
		}
	}

	second := ordered[0]
	if second == winner {
		second = ordered[1]
	}
	confidence := scores[winner] - scores[second]
	if f.Verified {
		confidence += 10
	}
	if f.BioLength >= substantialBioLength {
		confidence += 5
	}
	if f.Followers >= healthyFollowerFloor {
		confidence += 5
	}
	if f.Posts >= 10 {
		confidence += 5
	}
	conf := int(math.Round(math.Max(0, math.Min(100, confidence))))

	return domain.Decision{
		Category:   winner,
		Confidence: conf,
		RiskLevel:  domain.RiskForConfidence(conf),
		Reason:     buildReason(winner, f, meetsThreshold),
		Scores:     scores,
	}
}

func buildReason(winner domain.Category, f Features, meetsThreshold bool) string {
	var signals []string
	for _, feature := range f.Present() {
		if feature.Category() == winner {
			signals = append(signals, feature.String())
		}
	}
	prefix := string(winner)
	if !meetsThreshold {
		prefix += " (highest score, below threshold)"
	}
	if len(signals) == 0 {
		return prefix
	}
	return fmt.Sprintf("%s: %s", prefix, strings.Join(signals, ", "))
}

// Feedback records whether the system decision was right and, when it was
// not, shifts weight from the features that drove the wrong call to the
// features of the actual category.
func (s *Scorer) Feedback(record domain.FeedbackRecord) {
	actual := record.ActualCategory
	predicted := record.SystemDecision.Category
	correct := actual == predicted

	s.mu.Lock()
	s.recordOutcomeLocked(correct)
	accuracy := s.accuracyLocked()
	if !correct && actual != "" {
		features := Extract(record.Candidate, Context{BrandName: record.BrandName})
		s.adjustLocked(features, actual, predicted)
	}
	s.mu.Unlock()

	s.logger.Debug("scorer feedback applied",
		slog.String("predicted", string(predicted)),
		slog.String("actual", string(actual)),
		slog.Bool("correct", correct),
		slog.Float64("accuracy", accuracy),
	)
	if s.onAccuracy != nil {
		s.onAccuracy(accuracy)
	}
}

func (s *Scorer) adjustLocked(f Features, actual, predicted domain.Category) {
	boosted := false
	for _, feature := range f.Present() {
		switch feature.Category() {
		case actual:
			s.weights[feature] = math.Min(MaxWeight, s.weights[feature]+s.learningRate)
			boosted = true
		case predicted:
			s.weights[feature] = math.Max(MinWeight, s.weights[feature]-s.learningRate)
		}
	}
	if boosted {
		return
	}
	// The profile shows none of the actual category's features; nudge the
	// whole category so it can win similar profiles next time.
	for _, feature := range AllFeatures() {
		if feature.Category() == actual {
			s.weights[feature] = math.Min(MaxWeight, s.weights[feature]+s.learningRate/2)
		}
	}
}

func (s *Scorer) recordOutcomeLocked(correct bool) {
	s.feedbacks++
	if len(s.outcomes) < AccuracyWindow {
		s.outcomes = append(s.outcomes, correct)
		return
	}
	s.outcomes[s.next] = correct
	s.next = (s.next + 1) % AccuracyWindow
}

func (s *Scorer) accuracyLocked() float64 {
	if len(s.outcomes) == 0 {
		return 0
	}
	correct := 0
	for _, ok := range s.outcomes {
		if ok {
			correct++
		}
	}
	return float64(correct) / float64(len(s.outcomes))
}

// Accuracy is the share of correct decisions in the last AccuracyWindow feedbacks.
func (s *Scorer) Accuracy() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accuracyLocked()
}

func (s *Scorer) Weight(feature Feature) float64 {
	if feature < 0 || feature >= featureCount {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights[feature]
}

// SetWeights replaces weights by feature name. Unknown names are rejected.
func (s *Scorer) SetWeights(byName map[string]float64) error {
	updates := make(map[Feature]float64, len(byName))
	for name, value := range byName {
		feature, ok := ParseFeature(name)
		if !ok {
			return fmt.Errorf("unknown scorer feature %q", name)
		}
		updates[feature] = math.Max(MinWeight, math.Min(MaxWeight, value))
	}
	s.mu.Lock()
	for feature, value := range updates {
		s.weights[feature] = value
	}
	s.mu.Unlock()
	return nil
}

type Snapshot struct {
	Weights        map[string]float64 `json:"weights"`
	Thresholds     Thresholds         `json:"thresholds"`
	Accuracy       float64            `json:"accuracy"`
	WindowSize     int                `json:"windowSize"`
	TotalFeedbacks int64              `json:"totalFeedbacks"`
}

func (s *Scorer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	weights := make(map[string]float64, featureCount)
	for feature := Feature(0); feature < featureCount; feature++ {
		weights[feature.String()] = s.weights[feature]
	}
	return Snapshot{
		Weights:        weights,
		Thresholds:     s.thresholds,
		Accuracy:       s.accuracyLocked(),
		WindowSize:     len(s.outcomes),
		TotalFeedbacks: s.feedbacks,
	}
}
