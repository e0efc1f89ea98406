package domain

import "strings"

type Category string

const (
	CategoryInfluencer Category = "influencer"
	CategoryBrand      Category = "brand"
	CategoryGeneric    Category = "generic"
)

var Categories = []Category{CategoryInfluencer, CategoryBrand, CategoryGeneric}

func ParseCategory(raw string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryInfluencer:
		return CategoryInfluencer, true
	case CategoryBrand:
		return CategoryBrand, true
	case CategoryGeneric:
		return CategoryGeneric, true
	default:
		return "", false
	}
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func RiskForConfidence(confidence int) RiskLevel {
	switch {
	case confidence >= 80:
		return RiskLow
	case confidence >= 60:
		return RiskMedium
	default:
		return RiskHigh
	}
}

type Decision struct {
	Category   Category             `json:"category"`
	Confidence int                  `json:"confidence"`
	RiskLevel  RiskLevel            `json:"riskLevel"`
	Reason     string               `json:"reason"`
	Scores     map[Category]float64 `json:"scores,omitempty"`
}

// FeedbackRecord is a user verdict on one decision. BrandName is the brand of
// the search the decision was made in.
type FeedbackRecord struct {
	Candidate      Profile  `json:"candidate"`
	SystemDecision Decision `json:"systemDecision"`
	ActualCategory Category `json:"actualCategory"`
	UserCorrected  bool     `json:"userCorrected"`
	BrandName      string   `json:"brandName,omitempty"`
}
