package domain

type QualityTier string

const (
	TierHigh   QualityTier = "high"
	TierMedium QualityTier = "medium"
	TierLow    QualityTier = "low"
)

type AttemptOutcome string

const (
	OutcomeEmpty   AttemptOutcome = "empty"
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeError   AttemptOutcome = "error"
)

type FallbackAttempt struct {
	Strategy    string         `json:"strategy"`
	Order       int            `json:"order"`
	Outcome     AttemptOutcome `json:"outcome"`
	QualityTier QualityTier    `json:"qualityTier"`
	Warnings    []string       `json:"warnings,omitempty"`
}

type RankedCandidate struct {
	Profile
	Rank     int      `json:"rank"`
	Score    int      `json:"score"`
	Decision Decision `json:"decision"`
	Verified *bool    `json:"verified,omitempty"`
	Reasons  []string `json:"reasons,omitempty"`
}

type SearchSummary struct {
	TotalFound       int      `json:"totalFound"`
	TotalScraped     int      `json:"totalScraped"`
	TotalReturned    int      `json:"totalReturned"`
	Verified         int      `json:"verified"`
	AverageScore     float64  `json:"averageScore"`
	ProcessingTimeMS int64    `json:"processingTimeMs"`
	ImprovementsUsed []string `json:"improvementsUsed"`
}

type SearchResponse struct {
	SearchID        string            `json:"searchId"`
	Success         bool              `json:"success"`
	Results         []RankedCandidate `json:"results"`
	Summary         SearchSummary     `json:"summary"`
	Recommendations []string          `json:"recommendations"`
	Source          string            `json:"source,omitempty"`
	QualityTier     QualityTier       `json:"qualityTier,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
	Attempts        []FallbackAttempt `json:"attempts,omitempty"`
	Cached          bool              `json:"cached"`
}

// CloneSearchResponse deep-copies slices so cached payloads cannot be mutated
// through a response handed to a caller.
func CloneSearchResponse(response SearchResponse) SearchResponse {
	cloned := response
	if response.Results != nil {
		cloned.Results = make([]RankedCandidate, len(response.Results))
		for i, item := range response.Results {
			copied := item
			copied.Profile = cloneProfile(item.Profile)
			copied.Reasons = append([]string(nil), item.Reasons...)
			copied.Decision.Scores = cloneScores(item.Decision.Scores)
			if item.Verified != nil {
				value := *item.Verified
				copied.Verified = &value
			}
			cloned.Results[i] = copied
		}
	}
	cloned.Summary.ImprovementsUsed = append([]string(nil), response.Summary.ImprovementsUsed...)
	cloned.Recommendations = append([]string(nil), response.Recommendations...)
	cloned.Warnings = append([]string(nil), response.Warnings...)
	if response.Attempts != nil {
		cloned.Attempts = make([]FallbackAttempt, len(response.Attempts))
		for i, attempt := range response.Attempts {
			attempt.Warnings = append([]string(nil), attempt.Warnings...)
			cloned.Attempts[i] = attempt
		}
	}
	return cloned
}

func cloneScores(scores map[Category]float64) map[Category]float64 {
	if scores == nil {
		return nil
	}
	out := make(map[Category]float64, len(scores))
	for k, v := range scores {
		out[k] = v
	}
	return out
}
