package dto

import "github.com/google/uuid"

// Listing page sizes.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// ProspectFilter contains query parameters for prospect listing endpoints.
type ProspectFilter struct {
	OrgID    string
	City     string
	Category string
	RunID    *uuid.UUID
	MinScore *int
	Page     int
	PerPage  int
}

// Bounds returns the effective page and page size: page starts at 1, the
// size defaults to DefaultPerPage and is capped at MaxPerPage.
func (f ProspectFilter) Bounds() (page, perPage int) {
	page = f.Page
	if page <= 0 {
		page = 1
	}
	perPage = f.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// TrustRequest asks for a website trust verdict.
type TrustRequest struct {
	Website string `json:"website"`
	Deep    bool   `json:"deep"`
}

// ScoreRequest carries the business attributes used by the automation scorer.
type ScoreRequest struct {
	Website        string  `json:"website"`
	Rating         float64 `json:"rating"`
	ReviewCount    int     `json:"review_count"`
	Phone          string  `json:"phone"`
	BusinessStatus string  `json:"business_status"`
}

// RunRequest describes a pipeline run submitted over the API.
type RunRequest struct {
	Query              string  `json:"query"`
	City               string  `json:"city"`
	Lat                float64 `json:"lat"`
	Lng                float64 `json:"lng"`
	Radius             float64 `json:"radius"`
	Category           string  `json:"category"`
	Pages              int     `json:"pages"`
	MinScore           *int    `json:"min_score"`
	EnrichEmails       bool    `json:"enrich_emails"`
	EnrichSocial       bool    `json:"enrich_social"`
	EnrichIntelligence bool    `json:"enrich_intelligence"`
	SkipSuspicious     bool    `json:"skip_suspicious"`
	DeepTrust          bool    `json:"deep_trust"`
}

// RunAccepted is returned when a run is queued.
type RunAccepted struct {
	RunID string `json:"run_id"`
}
