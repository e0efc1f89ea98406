package quality

import (
	"regexp"
	"strings"
	"unicode"

	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/textnorm"
)

// Feature indexes the weight table. Adding a feature means adding a constant,
// a name, a category and a default weight.
type Feature int

const (
	RealName Feature = iota
	PersonalBio
	CreatorKeywords
	HealthyRatio
	HighEngagement
	VerifiedAccount
	SubstantialBio

	BrandKeywords
	BusinessBio
	Promotional
	BusinessAccount

	GenericUsername
	NoBio
	LowRatio
	LowEngagement
	HighFollowing

	featureCount
)

var featureNames = [featureCount]string{
	RealName:        "realName",
	PersonalBio:     "personalBio",
	CreatorKeywords: "creatorKeywords",
	HealthyRatio:    "healthyRatio",
	HighEngagement:  "highEngagement",
	VerifiedAccount: "verified",
	SubstantialBio:  "substantialBio",
	BrandKeywords:   "brandKeywords",
	BusinessBio:     "businessBio",
	Promotional:     "promotional",
	BusinessAccount: "businessAccount",
	GenericUsername: "genericUsername",
	NoBio:           "noBio",
	LowRatio:        "lowRatio",
	LowEngagement:   "lowEngagement",
	HighFollowing:   "highFollowing",
}

var featureCategories = [featureCount]domain.Category{
	RealName:        domain.CategoryInfluencer,
	PersonalBio:     domain.CategoryInfluencer,
	CreatorKeywords: domain.CategoryInfluencer,
	HealthyRatio:    domain.CategoryInfluencer,
	HighEngagement:  domain.CategoryInfluencer,
	VerifiedAccount: domain.CategoryInfluencer,
	SubstantialBio:  domain.CategoryInfluencer,
	BrandKeywords:   domain.CategoryBrand,
	BusinessBio:     domain.CategoryBrand,
	Promotional:     domain.CategoryBrand,
	BusinessAccount: domain.CategoryBrand,
	GenericUsername: domain.CategoryGeneric,
	NoBio:           domain.CategoryGeneric,
	LowRatio:        domain.CategoryGeneric,
	LowEngagement:   domain.CategoryGeneric,
	HighFollowing:   domain.CategoryGeneric,
}

func (f Feature) String() string {
	if f < 0 || f >= featureCount {
		return "unknown"
	}
	return featureNames[f]
}

func (f Feature) Category() domain.Category {
	if f < 0 || f >= featureCount {
		return ""
	}
	return featureCategories[f]
}

func AllFeatures() []Feature {
	out := make([]Feature, 0, featureCount)
	for f := Feature(0); f < featureCount; f++ {
		out = append(out, f)
	}
	return out
}

func ParseFeature(name string) (Feature, bool) {
	for f := Feature(0); f < featureCount; f++ {
		if strings.EqualFold(featureNames[f], name) {
			return f, true
		}
	}
	return 0, false
}

// Features is the extracted signal set for one profile.
type Features struct {
	present [featureCount]bool

	BioLength      int
	Followers      int64
	Following      int64
	Posts          int64
	EngagementRate float64
	Verified       bool
}

func (f Features) Has(feature Feature) bool {
	if feature < 0 || feature >= featureCount {
		return false
	}
	return f.present[feature]
}

func (f *Features) Set(feature Feature) {
	if feature >= 0 && feature < featureCount {
		f.present[feature] = true
	}
}

func (f Features) Present() []Feature {
	var out []Feature
	for feature := Feature(0); feature < featureCount; feature++ {
		if f.present[feature] {
			out = append(out, feature)
		}
	}
	return out
}

const (
	substantialBioLength = 50
	healthyRatio         = 2.0
	lowRatio             = 0.5
	highEngagementRate   = 3.0
	lowEngagementRate    = 0.5
	highFollowingCount   = 5000
	healthyFollowerFloor = 1000
)

var (
	realNamePattern       = regexp.MustCompile(`^\p{L}+(?:[ '\-]\p{L}+){1,3}$`)
	genericHandlePattern  = regexp.MustCompile(`^[a-z]+[0-9]{4,}$`)
	personalWords         = []string{"i", "i'm", "im", "my", "me", "mom", "dad", "mama", "wife", "husband", "lover", "yo", "soy", "mi", "life", "living"}
	creatorWords          = []string{"creator", "influencer", "blogger", "vlogger", "youtuber", "tiktoker", "content", "ugc", "collab", "collabs", "ambassador", "athlete", "model", "coach", "chef", "artist", "creadora", "creador"}
	brandWords            = []string{"shop", "store", "brand", "company", "official", "inc", "ltd", "llc", "tienda", "boutique", "marca", "oficial"}
	businessPhrases       = []string{"customer service", "shipping", "worldwide", "orders", "dm to order", "contact us", "envios", "envíos", "info@", "www.", "our ", "we "}
	promotionalPhrases    = []string{"discount", "sale", "promo", "% off", "free shipping", "link in bio", "shop now", "oferta", "descuento", "use code"}
	genericHandleFragment = []string{"user", "guest", "account", "profile", "test"}
)

// Extract derives the feature set of p. ctx tightens brand detection when the
// search names a brand.
func Extract(p domain.Profile, ctx Context) Features {
	f := Features{
		BioLength:      len([]rune(strings.TrimSpace(p.Bio))),
		Followers:      p.Followers,
		Following:      p.Following,
		Posts:          p.Posts,
		EngagementRate: p.EngagementRate,
		Verified:       p.Verified,
	}

	bio := textnorm.Fold(p.Bio)
	bioTokens := tokenSet(bio)
	nameTokens := tokenSet(textnorm.Fold(p.DisplayName + " " + p.Username))
	handle := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p.Username), "@"))

	if name := strings.TrimSpace(p.DisplayName); name != "" && realNamePattern.MatchString(name) && !anyToken(nameTokens, brandWords) {
		f.Set(RealName)
	}
	if anyToken(bioTokens, personalWords) {
		f.Set(PersonalBio)
	}
	if anyToken(bioTokens, creatorWords) || anyToken(nameTokens, creatorWords) {
		f.Set(CreatorKeywords)
	}
	if p.Followers >= healthyFollowerFloor {
		if p.Following == 0 || float64(p.Followers)/float64(p.Following) >= healthyRatio {
			f.Set(HealthyRatio)
		}
	}
	if p.EngagementRate >= highEngagementRate {
		f.Set(HighEngagement)
	}
	if p.Verified {
		f.Set(VerifiedAccount)
	}
	if f.BioLength >= substantialBioLength {
		f.Set(SubstantialBio)
	}

	if anyToken(bioTokens, brandWords) || anyToken(nameTokens, brandWords) || ctx.isBrandHandle(handle) {
		f.Set(BrandKeywords)
	}
	if anyPhrase(bio, businessPhrases) {
		f.Set(BusinessBio)
	}
	if anyPhrase(bio, promotionalPhrases) {
		f.Set(Promotional)
	}
	if p.IsBusiness {
		f.Set(BusinessAccount)
	}

	if isGenericHandle(handle) {
		f.Set(GenericUsername)
	}
	if f.BioLength == 0 {
		f.Set(NoBio)
	}
	if p.Following > 0 && float64(p.Followers)/float64(p.Following) < lowRatio {
		f.Set(LowRatio)
	}
	if p.EngagementRate > 0 && p.EngagementRate < lowEngagementRate {
		f.Set(LowEngagement)
	}
	if p.Following >= highFollowingCount {
		f.Set(HighFollowing)
	}
	return f
}

func isGenericHandle(handle string) bool {
	if handle == "" {
		return true
	}
	runes := []rune(handle)
	if len(runes) < 3 {
		return true
	}
	digits := 0
	for _, r := range runes {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if float64(digits)/float64(len(runes)) > 0.4 {
		return true
	}
	if genericHandlePattern.MatchString(handle) {
		return true
	}
	for _, fragment := range genericHandleFragment {
		if strings.Contains(handle, fragment) {
			return true
		}
	}
	return false
}

func tokenSet(folded string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}) {
		out[field] = struct{}{}
	}
	return out
}

func anyToken(tokens map[string]struct{}, words []string) bool {
	for _, word := range words {
		if _, ok := tokens[word]; ok {
			return true
		}
	}
	return false
}

func anyPhrase(folded string, phrases []string) bool {
	if folded == "" {
		return false
	}
	padded := " " + folded + " "
	for _, phrase := range phrases {
		needle := textnorm.Fold(phrase)
		// "we " and "our " are whole words.
		if strings.HasSuffix(phrase, " ") {
			needle = " " + needle + " "
		}
		if strings.Contains(padded, needle) {
			return true
		}
	}
	return false
}
