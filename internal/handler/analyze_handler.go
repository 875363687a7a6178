package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/octobees/leadgen/internal/dto"
	"github.com/octobees/leadgen/internal/service/scoring"
	"github.com/octobees/leadgen/internal/service/trust"
)

// TrustChecker classifies a single website.
type TrustChecker interface {
	Quick(website string) trust.Verdict
	Deep(ctx context.Context, website string, timeout time.Duration) trust.DeepVerdict
}

// BusinessScorer computes automation-need scores.
type BusinessScorer interface {
	Score(input scoring.BusinessSignals) scoring.ScoreResult
}

// AnalyzeHandler runs the stateless analyzers on request payloads.
type AnalyzeHandler struct {
	trust  TrustChecker
	scorer BusinessScorer
}

// NewAnalyzeHandler constructs the handler. A nil scorer uses the default vocabulary.
func NewAnalyzeHandler(checker TrustChecker, scorer BusinessScorer) *AnalyzeHandler {
	if scorer == nil {
		scorer = scoring.New(nil)
	}
	return &AnalyzeHandler{trust: checker, scorer: scorer}
}

// Trust handles POST /analyze/trust requests.
func (h *AnalyzeHandler) Trust(c echo.Context) error {
	var req dto.TrustRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}
	website := strings.TrimSpace(req.Website)
	if website == "" {
		return Error(c, http.StatusBadRequest, "website is required")
	}

	if req.Deep {
		verdict := h.trust.Deep(c.Request().Context(), website, trust.DefaultDeepTimeout)
		return Success(c, http.StatusOK, "website analyzed", verdict)
	}
	return Success(c, http.StatusOK, "website analyzed", h.trust.Quick(website))
}

// Score handles POST /analyze/score requests.
func (h *AnalyzeHandler) Score(c echo.Context) error {
	var req dto.ScoreRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}
	if req.Rating < 0 || req.Rating > 5 {
		return Error(c, http.StatusBadRequest, "rating must be between 0 and 5")
	}
	if req.ReviewCount < 0 {
		return Error(c, http.StatusBadRequest, "review_count must not be negative")
	}

	result := h.scorer.Score(scoring.BusinessSignals{
		Website:        strings.TrimSpace(req.Website),
		Rating:         req.Rating,
		ReviewCount:    req.ReviewCount,
		Phone:          strings.TrimSpace(req.Phone),
		BusinessStatus: strings.TrimSpace(req.BusinessStatus),
	})
	return Success(c, http.StatusOK, "business scored", result)
}
