package router

import (
	"github.com/labstack/echo/v4"

	"github.com/octobees/leadgen/internal/auth"
	"github.com/octobees/leadgen/internal/config"
	"github.com/octobees/leadgen/internal/handler"
	middlewarepkg "github.com/octobees/leadgen/internal/middleware"
)

// Handlers aggregates HTTP handlers used by the router.
type Handlers struct {
	Health    *handler.HealthHandler
	Prospects *handler.ProspectsHandler
	Analyze   *handler.AnalyzeHandler
	Runs      *handler.RunsHandler
}

// Register wires all HTTP routes for the API.
func Register(e *echo.Echo, cfg *config.Config, tokens middlewarepkg.TokenParser, handlers Handlers) {
	e.GET("/healthz", handlers.Health.Check)

	secured := e.Group("")
	secured.Use(middlewarepkg.JWT(tokens))

	secured.GET("/prospects", handlers.Prospects.List)
	secured.GET("/prospects/:place_id", handlers.Prospects.Get)

	secured.POST("/analyze/trust", handlers.Analyze.Trust)
	secured.POST("/analyze/score", handlers.Analyze.Score)

	if handlers.Runs != nil {
		runs := secured.Group("/runs", middlewarepkg.RequireRole(auth.RoleAdmin))
		runs.POST("", handlers.Runs.Create, middlewarepkg.RunRateLimiter(cfg.RateLimitRuns))
		runs.GET("/:run_id", handlers.Runs.Get)
	}
}
