package domain

// VettedFilter narrows a query against the curated profile dataset. Zero
// values do not filter.
type VettedFilter struct {
	Country      string     `json:"country,omitempty"`
	Platforms    []Platform `json:"platforms,omitempty"`
	Niches       []string   `json:"niches,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	MinFollowers int64      `json:"minFollowers,omitempty"`
	MaxFollowers int64      `json:"maxFollowers,omitempty"`
	Limit        int        `json:"limit,omitempty"`
}

// VettedFilterFor projects search parameters onto the dataset filter.
func VettedFilterFor(params SearchParams) VettedFilter {
	return VettedFilter{
		Country:      params.Location,
		Platforms:    append([]Platform(nil), params.Platforms...),
		Niches:       append([]string(nil), params.Niches...),
		Gender:       params.Gender,
		MinFollowers: params.MinFollowers,
		MaxFollowers: params.MaxFollowers,
		Limit:        params.MaxResults,
	}
}

// Verification is the verifier's verdict on one profile URL.
type Verification struct {
	URL        string   `json:"url"`
	Platform   Platform `json:"platform"`
	Verified   bool     `json:"verified"`
	Confidence int      `json:"confidence"`
	Reason     string   `json:"reason,omitempty"`
	Profile    *Profile `json:"profile,omitempty"`
}
