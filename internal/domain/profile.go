package domain

// DataSource says where a profile's metrics came from. It is part of every
// profile so estimated data cannot be mistaken for scraped data.
type DataSource string

const (
	SourceScraped       DataSource = "scraped"
	SourceVetted        DataSource = "vetted"
	SourceEstimated     DataSource = "estimated"
	SourceSearchSnippet DataSource = "search-snippet"
)

// Authoritative reports whether the metrics were observed rather than estimated.
func (s DataSource) Authoritative() bool {
	return s == SourceScraped || s == SourceVetted
}

// WebResult is one organic hit returned by a web-search provider.
type WebResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// CandidateProfile is a discovered profile URL that has not been scraped yet.
type CandidateProfile struct {
	URL                string   `json:"url"`
	Platform           Platform `json:"platform"`
	Handle             string   `json:"handle"`
	Title              string   `json:"title,omitempty"`
	Snippet            string   `json:"snippet,omitempty"`
	PriorityScore      int      `json:"priorityScore"`
	QualityScore       int      `json:"qualityScore"`
	EstimatedRelevance int      `json:"estimatedRelevance"`
	Provenance         string   `json:"provenance"`
	Reasons            []string `json:"reasons,omitempty"`
}

type Profile struct {
	URL            string     `json:"url"`
	Platform       Platform   `json:"platform"`
	Username       string     `json:"username"`
	DisplayName    string     `json:"displayName,omitempty"`
	Bio            string     `json:"bio,omitempty"`
	Location       string     `json:"location,omitempty"`
	Country        string     `json:"country,omitempty"`
	Gender         string     `json:"gender,omitempty"`
	Age            int        `json:"age,omitempty"`
	Niches         []string   `json:"niches,omitempty"`
	Followers      int64      `json:"followers"`
	Following      int64      `json:"following"`
	Posts          int64      `json:"posts"`
	EngagementRate float64    `json:"engagementRate"`
	Verified       bool       `json:"verified"`
	IsBusiness     bool       `json:"isBusiness"`
	DataSource     DataSource `json:"dataSource"`
	IsFallback     bool       `json:"isFallback"`
	Provenance     string     `json:"provenance,omitempty"`
	PriorityScore  int        `json:"priorityScore"`
	QualityScore   int        `json:"qualityScore"`
	Relevance      int        `json:"relevance"`
}

func cloneProfile(p Profile) Profile {
	out := p
	out.Niches = append([]string(nil), p.Niches...)
	return out
}
