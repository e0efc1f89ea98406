package quality

import (
	"strings"
	"testing"

	"layai/searchservice/internal/domain"
)

func influencerProfile() domain.Profile {
	return domain.Profile{
		Username:       "laura.runs",
		DisplayName:    "Laura Martínez",
		Bio:            "Running coach and content creator. My life between marathons and motherhood 🏃‍♀️",
		Followers:      48000,
		Following:      700,
		Posts:          420,
		EngagementRate: 4.2,
		Verified:       true,
	}
}

func brandProfile() domain.Profile {
	return domain.Profile{
		Username:       "runshop_madrid",
		DisplayName:    "RunShop Madrid",
		Bio:            "Official store. Shop the latest drops. Worldwide shipping.",
		Followers:      12000,
		Following:      150,
		Posts:          900,
		EngagementRate: 0.8,
		IsBusiness:     true,
	}
}

func genericProfile() domain.Profile {
	return domain.Profile{
		Username:       "user83749201",
		Followers:      40,
		Following:      7400,
		EngagementRate: 0.1,
	}
}

// ---------------------------------------------------------------------------
// Feature extraction
// ---------------------------------------------------------------------------

func TestExtract_InfluencerSignals(t *testing.T) {
	f := Extract(influencerProfile(), Context{})
	for _, want := range []Feature{RealName, PersonalBio, CreatorKeywords, HealthyRatio, HighEngagement, VerifiedAccount, SubstantialBio} {
		if !f.Has(want) {
			t.Errorf("expected %s to be present", want)
		}
	}
	for _, unwanted := range []Feature{BusinessAccount, GenericUsername, NoBio, HighFollowing} {
		if f.Has(unwanted) {
			t.Errorf("did not expect %s", unwanted)
		}
	}
}

func TestExtract_BrandAndGenericSignals(t *testing.T) {
	brand := Extract(brandProfile(), Context{})
	for _, want := range []Feature{BrandKeywords, BusinessBio, BusinessAccount} {
		if !brand.Has(want) {
			t.Errorf("brand profile: expected %s", want)
		}
	}

	generic := Extract(genericProfile(), Context{})
	for _, want := range []Feature{GenericUsername, NoBio, LowRatio, LowEngagement, HighFollowing} {
		if !generic.Has(want) {
			t.Errorf("generic profile: expected %s", want)
		}
	}
}

func TestExtract_SearchedBrandHandle(t *testing.T) {
	p := domain.Profile{Username: "nike", Bio: "Just do it."}
	if Extract(p, Context{}).Has(BrandKeywords) {
		t.Fatal("plain handle should not be a brand signal without context")
	}
	if !Extract(p, Context{BrandName: "Nike"}).Has(BrandKeywords) {
		t.Fatal("searched brand's own handle should be a brand signal")
	}
}

// ---------------------------------------------------------------------------
// Decisions
// ---------------------------------------------------------------------------

func TestDecide_Categories(t *testing.T) {
	s := New()
	tests := []struct {
		name    string
		profile domain.Profile
		want    domain.Category
	}{
		{"influencer", influencerProfile(), domain.CategoryInfluencer},
		{"brand", brandProfile(), domain.CategoryBrand},
		{"generic", genericProfile(), domain.CategoryGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := s.Decide(tt.profile, Context{})
			if d.Category != tt.want {
				t.Fatalf("expected %s, got %+v", tt.want, d)
			}
			if d.Confidence < 0 || d.Confidence > 100 {
				t.Fatalf("confidence out of range: %d", d.Confidence)
			}
			if d.RiskLevel != domain.RiskForConfidence(d.Confidence) {
				t.Fatalf("risk %s does not match confidence %d", d.RiskLevel, d.Confidence)
			}
			if !strings.HasPrefix(d.Reason, string(tt.want)) {
				t.Fatalf("unexpected reason %q", d.Reason)
			}
		})
	}
}

func TestDecide_ScoresArePercentages(t *testing.T) {
	d := New().Decide(brandProfile(), Context{})
	sum := 0.0
	for _, v := range d.Scores {
		sum += v
	}
	if sum < 99.8 || sum > 100.2 {
		t.Fatalf("expected scores to sum to 100, got %v (%v)", sum, d.Scores)
	}
}

func TestDecide_ClearInfluencerIsLowRisk(t *testing.T) {
	d := New().Decide(influencerProfile(), Context{})
	if d.Confidence < 80 || d.RiskLevel != domain.RiskLow {
		t.Fatalf("expected low-risk decision, got %+v", d)
	}
}

func TestDecide_NoSignals(t *testing.T) {
	var f Features
	d := New().DecideFeatures(f)
	if d.Category != domain.CategoryGeneric || d.Confidence != 0 || d.RiskLevel != domain.RiskHigh {
		t.Fatalf("unexpected empty decision: %+v", d)
	}
}

func TestDecide_HighestWinsWhenNoThresholdMet(t *testing.T) {
	s := New(WithThresholds(Thresholds{Influencer: 99, Brand: 99, Generic: 99}))
	d := s.Decide(brandProfile(), Context{})
	if d.Category != domain.CategoryBrand {
		t.Fatalf("expected highest category to win, got %+v", d)
	}
	if !strings.Contains(d.Reason, "below threshold") {
		t.Fatalf("expected reason to mention threshold, got %q", d.Reason)
	}
}

// ---------------------------------------------------------------------------
// Feedback learning
// ---------------------------------------------------------------------------

func TestFeedback_WrongBrandPredictionShiftsWeights(t *testing.T) {
	s := New()
	candidate := brandProfile()
	decision := s.Decide(candidate, Context{})
	if decision.Category != domain.CategoryBrand {
		t.Fatalf("precondition: expected brand prediction, got %s", decision.Category)
	}

	brandBefore := s.Weight(BrandKeywords)
	influencerBefore := make(map[Feature]float64)
	for _, f := range AllFeatures() {
		if f.Category() == domain.CategoryInfluencer {
			influencerBefore[f] = s.Weight(f)
		}
	}

	s.Feedback(domain.FeedbackRecord{
		Candidate:      candidate,
		SystemDecision: decision,
		ActualCategory: domain.CategoryInfluencer,
		UserCorrected:  true,
	})

	if after := s.Weight(BrandKeywords); after >= brandBefore || after < MinWeight {
		t.Fatalf("expected brandKeywords to decrease within floor: before=%v after=%v", brandBefore, after)
	}
	increased := false
	for f, before := range influencerBefore {
		if s.Weight(f) > before {
			increased = true
		}
	}
	if !increased {
		t.Fatal("expected at least one influencer weight to increase")
	}
}

func TestFeedback_SearchedBrandHandleCorrection(t *testing.T) {
	s := New()
	candidate := domain.Profile{Username: "nike", Bio: "Just do it."}
	before := s.Weight(BrandKeywords)

	s.Feedback(domain.FeedbackRecord{
		Candidate:      candidate,
		SystemDecision: domain.Decision{Category: domain.CategoryBrand},
		ActualCategory: domain.CategoryInfluencer,
		BrandName:      "Nike",
	})

	if after := s.Weight(BrandKeywords); after != before-DefaultLearningRate {
		t.Fatalf("expected brandKeywords to drop one step: before=%v after=%v", before, after)
	}
}

func TestFeedback_WeightsStayWithinBounds(t *testing.T) {
	s := New(WithLearningRate(10))
	candidate := brandProfile()
	decision := domain.Decision{Category: domain.CategoryBrand}
	for i := 0; i < 20; i++ {
		s.Feedback(domain.FeedbackRecord{Candidate: candidate, SystemDecision: decision, ActualCategory: domain.CategoryInfluencer})
	}
	for _, f := range AllFeatures() {
		w := s.Weight(f)
		if w < MinWeight || w > MaxWeight {
			t.Fatalf("%s weight out of bounds: %v", f, w)
		}
	}
	if s.Weight(BrandKeywords) != MinWeight {
		t.Fatalf("expected brandKeywords at floor, got %v", s.Weight(BrandKeywords))
	}
}

func TestFeedback_NoActualCategoryFeaturesBoostsWholeCategory(t *testing.T) {
	s := New()
	candidate := genericProfile()
	before := s.Weight(CreatorKeywords)
	s.Feedback(domain.FeedbackRecord{
		Candidate:      candidate,
		SystemDecision: domain.Decision{Category: domain.CategoryGeneric},
		ActualCategory: domain.CategoryInfluencer,
	})
	if got := s.Weight(CreatorKeywords); got != before+DefaultLearningRate/2 {
		t.Fatalf("expected half-step boost, got %v -> %v", before, got)
	}
	if s.Weight(GenericUsername) >= DefaultWeights()[GenericUsername] {
		t.Fatal("expected generic features to be penalised")
	}
}

func TestFeedback_CorrectPredictionLeavesWeights(t *testing.T) {
	s := New()
	before := s.Snapshot().Weights
	s.Feedback(domain.FeedbackRecord{
		Candidate:      influencerProfile(),
		SystemDecision: domain.Decision{Category: domain.CategoryInfluencer},
		ActualCategory: domain.CategoryInfluencer,
	})
	after := s.Snapshot().Weights
	for name, w := range before {
		if after[name] != w {
			t.Fatalf("weight %s changed on correct feedback", name)
		}
	}
}

func TestAccuracy_RollingWindow(t *testing.T) {
	var observed float64
	s := New(WithAccuracyObserver(func(a float64) { observed = a }))
	wrong := domain.FeedbackRecord{Candidate: genericProfile(), SystemDecision: domain.Decision{Category: domain.CategoryBrand}, ActualCategory: domain.CategoryGeneric}
	right := domain.FeedbackRecord{Candidate: genericProfile(), SystemDecision: domain.Decision{Category: domain.CategoryGeneric}, ActualCategory: domain.CategoryGeneric}

	for i := 0; i < AccuracyWindow; i++ {
		s.Feedback(wrong)
	}
	if s.Accuracy() != 0 {
		t.Fatalf("expected 0 accuracy, got %v", s.Accuracy())
	}
	for i := 0; i < AccuracyWindow/2; i++ {
		s.Feedback(right)
	}
	if got := s.Accuracy(); got != 0.5 {
		t.Fatalf("expected oldest records to roll off, got %v", got)
	}
	if observed != 0.5 {
		t.Fatalf("observer saw %v", observed)
	}
	snap := s.Snapshot()
	if snap.WindowSize != AccuracyWindow || snap.TotalFeedbacks != int64(AccuracyWindow+AccuracyWindow/2) {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSetWeights(t *testing.T) {
	s := New()
	if err := s.SetWeights(map[string]float64{"creatorKeywords": 40, "noBio": 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Weight(CreatorKeywords) != 40 || s.Weight(NoBio) != MinWeight {
		t.Fatalf("unexpected weights: %v %v", s.Weight(CreatorKeywords), s.Weight(NoBio))
	}
	if err := s.SetWeights(map[string]float64{"madeUp": 1}); err == nil {
		t.Fatal("expected unknown feature to be rejected")
	}
}
