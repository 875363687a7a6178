package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/octobees/leadgen/internal/dto"
	"github.com/octobees/leadgen/internal/entity"
	middleware "github.com/octobees/leadgen/internal/middleware"
	"github.com/octobees/leadgen/internal/repository"
)

// ProspectsReader is the read side of the prospects repository.
type ProspectsReader interface {
	List(ctx context.Context, filter dto.ProspectFilter) ([]entity.Prospect, error)
	Get(ctx context.Context, orgID, placeID string) (*entity.Prospect, error)
}

// ProspectsHandler exposes stored prospects to the caller's organisation.
type ProspectsHandler struct {
	repo ProspectsReader
}

// NewProspectsHandler creates a new handler instance.
func NewProspectsHandler(repo ProspectsReader) *ProspectsHandler {
	return &ProspectsHandler{repo: repo}
}

// List handles GET /prospects requests.
func (h *ProspectsHandler) List(c echo.Context) error {
	orgID := middleware.OrgIDFromContext(c)
	if orgID == "" {
		return Error(c, http.StatusUnauthorized, "missing organisation")
	}

	filter := dto.ProspectFilter{
		OrgID:    orgID,
		City:     strings.TrimSpace(c.QueryParam("city")),
		Category: strings.TrimSpace(c.QueryParam("category")),
		Page:     parseIntDefault(c.QueryParam("page"), 1),
		PerPage:  parseIntDefault(c.QueryParam("per_page"), dto.DefaultPerPage),
	}

	if minScoreStr := strings.TrimSpace(c.QueryParam("min_score")); minScoreStr != "" {
		minScore, err := strconv.Atoi(minScoreStr)
		if err != nil || minScore < 0 || minScore > 100 {
			return Error(c, http.StatusBadRequest, "invalid min_score")
		}
		filter.MinScore = &minScore
	}

	if runIDParam := strings.TrimSpace(c.QueryParam("run_id")); runIDParam != "" {
		parsed, err := uuid.Parse(runIDParam)
		if err != nil {
			return Error(c, http.StatusBadRequest, "invalid run_id")
		}
		filter.RunID = &parsed
	}

	prospects, err := h.repo.List(c.Request().Context(), filter)
	if err != nil {
		return Error(c, http.StatusInternalServerError, "failed to list prospects")
	}
	if prospects == nil {
		prospects = []entity.Prospect{}
	}

	page, perPage := filter.Bounds()
	return Paginated(c, "prospects retrieved", prospects, PageMeta{Page: page, PerPage: perPage, Count: len(prospects)})
}

// Get handles GET /prospects/:place_id requests.
func (h *ProspectsHandler) Get(c echo.Context) error {
	orgID := middleware.OrgIDFromContext(c)
	if orgID == "" {
		return Error(c, http.StatusUnauthorized, "missing organisation")
	}
	placeID := strings.TrimSpace(c.Param("place_id"))
	if placeID == "" {
		return Error(c, http.StatusBadRequest, "place_id is required")
	}

	prospect, err := h.repo.Get(c.Request().Context(), orgID, placeID)
	if err != nil {
		if errors.Is(err, repository.ErrProspectNotFound) {
			return Error(c, http.StatusNotFound, "prospect not found")
		}
		return Error(c, http.StatusInternalServerError, "failed to load prospect")
	}

	return Success(c, http.StatusOK, "prospect retrieved", prospect)
}

func parseIntDefault(input string, fallback int) int {
	if input == "" {
		return fallback
	}
	if value, err := strconv.Atoi(input); err == nil {
		return value
	}
	return fallback
}
