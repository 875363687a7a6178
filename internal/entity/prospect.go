package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Prospect is an enriched, scored business ready for persistence.
type Prospect struct {
	ID      uuid.UUID `json:"id"`
	OrgID   string    `json:"org_id"`
	PlaceID string    `json:"place_id"`

	Name           string   `json:"name"`
	Address        *string  `json:"address,omitempty"`
	Phone          *string  `json:"phone,omitempty"`
	Website        *string  `json:"website,omitempty"`
	Rating         *float64 `json:"rating,omitempty"`
	Reviews        *int     `json:"reviews,omitempty"`
	BusinessStatus *string  `json:"business_status,omitempty"`
	Types          []string `json:"types,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`

	TrustScore   *int     `json:"trust_score,omitempty"`
	TrustFlags   []string `json:"trust_flags,omitempty"`
	IsLikelySpam bool     `json:"is_likely_spam"`

	BestEmail *string  `json:"best_email,omitempty"`
	Emails    []string `json:"emails,omitempty"`

	LinkedInURL  *string `json:"linkedin_url,omitempty"`
	FacebookURL  *string `json:"facebook_url,omitempty"`
	InstagramURL *string `json:"instagram_url,omitempty"`

	CMS            *string `json:"cms,omitempty"`
	HasContactForm bool    `json:"has_contact_form"`
	HasLiveChat    bool    `json:"has_live_chat"`
	HasBooking     bool    `json:"has_booking"`
	EmployeeCount  *int    `json:"employee_count,omitempty"`
	FoundedYear    *int    `json:"founded_year,omitempty"`
	Completeness   *int    `json:"completeness,omitempty"`

	AutomationScore   int            `json:"automation_score"`
	AutomationReasons []string       `json:"automation_reasons"`
	AutomationSignals map[string]int `json:"automation_signals"`

	RunID        uuid.UUID `json:"run_id"`
	Query        string    `json:"query"`
	City         string    `json:"city"`
	Category     *string   `json:"category,omitempty"`
	PageIndex    int       `json:"page_index"`
	Rank         int       `json:"rank"`
	DiscoveredAt time.Time `json:"discovered_at"`

	Raw       json.RawMessage `json:"raw"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
