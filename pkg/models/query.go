package models

// Query intents
const (
	IntentServiceRequest  = "service_request"
	IntentDirectoryLookup = "directory_lookup"
)

// ParsedQuery is the structured form of a free-text search.
type ParsedQuery struct {
	RawQuery string `json:"raw_query"`
	Intent   string `json:"intent"`

	// Service request fields
	Category           *string  `json:"category,omitempty"`
	CategoryConfidence float64  `json:"category_confidence,omitempty"`
	Specializations    []string `json:"specializations,omitempty"`
	Urgent             bool     `json:"urgent,omitempty"`

	// Directory lookup fields
	NameTokens []string `json:"name_tokens,omitempty"`

	// Shared fields. Location is the first mention; any further location
	// mentions are kept as alternatives.
	Location     *string  `json:"location,omitempty"`
	AltLocations []string `json:"alt_locations,omitempty"`
	BatchYear    *int     `json:"batch_year,omitempty"`
	Chapter      *string  `json:"chapter,omitempty"`
	FuzzyTerms   []string `json:"fuzzy_terms,omitempty"`
}

// RankedMember is one scored search result with the reasons it matched.
type RankedMember struct {
	Member       Member   `json:"member"`
	Score        float64  `json:"score"`
	MatchReasons []string `json:"match_reasons"`
}

// SearchRequest is the request for searching the directory.
type SearchRequest struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
}

// SearchResponse is the response for a directory search
type SearchResponse struct {
	Query      ParsedQuery    `json:"query"`
	Items      []RankedMember `json:"items"`
	TotalCount int            `json:"total_count"`
	Cached     bool           `json:"cached,omitempty"`
	// Suggestion carries guidance when nothing matched.
	Suggestion string `json:"suggestion,omitempty"`
}
