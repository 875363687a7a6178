package scoring

import (
	"math"
	"strings"

	"github.com/octobees/leadgen/internal/heuristics"
	"github.com/octobees/leadgen/internal/webfetch"
)

const (
	signalClosed      = "permanently_closed"
	signalNoWebsite   = "no_website"
	signalSiteBuilder = "site_builder"
	signalReviews     = "review_count"
	signalRating      = "rating"
	signalNoRating    = "no_rating"
	signalNoPhone     = "no_phone"
	signalOperational = "operational"

	fallbackReason = "General automation opportunity"
)

// BusinessSignals captures the place attributes used for scoring.
type BusinessSignals struct {
	Website        string
	Rating         float64
	ReviewCount    int
	Phone          string
	BusinessStatus string
}

// ScoreResult reports the automation-need score with its reasons and contributions.
type ScoreResult struct {
	Score   int            `json:"score"`
	Reasons []string       `json:"reasons"`
	Signals map[string]int `json:"signals"`
}

type reviewTier struct {
	max    int
	points float64
	reason string
}

var reviewTiers = []reviewTier{
	{5, 18, "Very few reviews (5 or fewer)"},
	{20, 14, "Few reviews (20 or fewer)"},
	{60, 10, "Modest review volume (60 or fewer)"},
	{150, 6, "Moderate review volume (150 or fewer)"},
}

var manyReviews = reviewTier{points: 2, reason: "Strong review volume"}

type ratingTier struct {
	below  float64
	points float64
	reason string
}

var ratingTiers = []ratingTier{
	{3.6, 18, "Low rating (below 3.6)"},
	{4.0, 14, "Below-average rating (below 4.0)"},
	{4.3, 9, "Average rating (below 4.3)"},
	{4.6, 4, "Good rating with room to improve (below 4.6)"},
}

var topRating = ratingTier{points: 1, reason: "Excellent rating"}

// Scorer computes automation-need scores. The site-builder table comes from
// its vocabulary.
type Scorer struct {
	vocab *heuristics.Vocabulary
}

// New builds a scorer over vocab; nil selects the embedded default.
func New(vocab *heuristics.Vocabulary) *Scorer {
	if vocab == nil {
		vocab = heuristics.Default()
	}
	return &Scorer{vocab: vocab}
}

// ComputeScore scores input against the embedded default vocabulary.
func ComputeScore(input BusinessSignals) ScoreResult {
	return New(nil).Score(input)
}

// Score evaluates the provided signals and returns the automation-need score.
func (s *Scorer) Score(input BusinessSignals) ScoreResult {
	if isPermanentlyClosed(input.BusinessStatus) {
		return ScoreResult{
			Score:   0,
			Reasons: []string{"Business is permanently closed"},
			Signals: map[string]int{signalClosed: 0},
		}
	}

	acc := &accumulator{signals: map[string]int{}}

	if strings.TrimSpace(input.Website) == "" {
		acc.add(signalNoWebsite, 25, "No website")
	} else if s.vocab.IsSiteBuilder(webfetch.Hostname(input.Website)) {
		acc.add(signalSiteBuilder, 8, "Site-builder website (upgrade opportunity)")
	}

	tier := manyReviews
	for _, t := range reviewTiers {
		if input.ReviewCount <= t.max {
			tier = t
			break
		}
	}
	acc.add(signalReviews, tier.points, tier.reason)

	if input.Rating > 0 {
		rt := topRating
		for _, t := range ratingTiers {
			if input.Rating < t.below {
				rt = t
				break
			}
		}
		acc.add(signalRating, rt.points, rt.reason)
	} else {
		acc.add(signalNoRating, 6, "No rating data")
	}

	if strings.TrimSpace(input.Phone) == "" {
		acc.add(signalNoPhone, 8, "No phone number listed")
	}

	if strings.Contains(strings.ToLower(input.BusinessStatus), "operational") {
		reason := ""
		if acc.total > 20 {
			reason = "Operational business (small discount)"
		}
		acc.add(signalOperational, -2, reason)
	}

	score := clamp(int(math.Round(acc.total)))
	reasons := dedupe(acc.reasons)
	if score > 0 && len(reasons) == 0 {
		reasons = []string{fallbackReason}
	}
	return ScoreResult{Score: score, Reasons: reasons, Signals: acc.signals}
}

type accumulator struct {
	total   float64
	reasons []string
	signals map[string]int
}

func (a *accumulator) add(signal string, points float64, reason string) {
	a.total += points
	a.signals[signal] += int(points)
	if reason != "" {
		a.reasons = append(a.reasons, reason)
	}
}

// isPermanentlyClosed accepts "permanently closed" phrasing and the CLOSED_PERMANENTLY enum.
func isPermanentlyClosed(status string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(status), "_", " ")
	return strings.Contains(normalized, "permanently closed") || strings.Contains(normalized, "closed permanently")
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
