package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/octobees/leadgen/internal/dto"
	"github.com/octobees/leadgen/internal/logger"
	middleware "github.com/octobees/leadgen/internal/middleware"
	"github.com/octobees/leadgen/internal/service/pipeline"
)

// Run states reported by GET /runs/:run_id.
const (
	RunStateRunning  = "running"
	RunStateFinished = "finished"
	RunStateFailed   = "failed"
)

// RunRetention is how long a finished run stays queryable.
const RunRetention = time.Hour

// RunExecutor executes one pipeline run.
type RunExecutor interface {
	Run(ctx context.Context, opts pipeline.Options) (pipeline.Stats, error)
}

// RunStatus is the tracked state of a submitted run.
type RunStatus struct {
	RunID      string          `json:"run_id"`
	OrgID      string          `json:"-"`
	State      string          `json:"state"`
	Stats      *pipeline.Stats `json:"stats,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// RunsHandler accepts pipeline runs and executes them in the background.
type RunsHandler struct {
	runner RunExecutor
	base   context.Context
	log    *zap.Logger
	spawn  func(func())
	now    func() time.Time

	retention time.Duration

	mu   sync.Mutex
	runs map[uuid.UUID]*RunStatus
}

// NewRunsHandler constructs the handler. Runs inherit base, so cancelling it
// stops in-flight runs at their next page boundary.
func NewRunsHandler(base context.Context, runner RunExecutor, log *zap.Logger) *RunsHandler {
	if base == nil {
		base = context.Background()
	}
	return &RunsHandler{
		runner: runner,
		base:   base,
		log:    logger.OrNop(log),
		spawn:  func(f func()) { go f() },
		now:    time.Now,

		retention: RunRetention,
		runs:      make(map[uuid.UUID]*RunStatus),
	}
}

// Create handles POST /runs requests.
func (h *RunsHandler) Create(c echo.Context) error {
	var req dto.RunRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}

	opts := pipeline.Options{
		RunID:              uuid.New(),
		OrgID:              middleware.OrgIDFromContext(c),
		Query:              req.Query,
		City:               req.City,
		Lat:                req.Lat,
		Lng:                req.Lng,
		Radius:             req.Radius,
		Category:           req.Category,
		Pages:              req.Pages,
		MinScore:           req.MinScore,
		EnrichEmails:       req.EnrichEmails,
		EnrichSocial:       req.EnrichSocial,
		EnrichIntelligence: req.EnrichIntelligence,
		SkipSuspicious:     req.SkipSuspicious,
		DeepTrust:          req.DeepTrust,
	}
	if err := opts.Validate(); err != nil {
		return Error(c, http.StatusBadRequest, err.Error())
	}

	status := &RunStatus{
		RunID:     opts.RunID.String(),
		OrgID:     opts.OrgID,
		State:     RunStateRunning,
		StartedAt: h.now().UTC(),
	}
	h.mu.Lock()
	h.pruneLocked()
	h.runs[opts.RunID] = status
	h.mu.Unlock()

	log := h.log.With(
		zap.String("run_id", status.RunID),
		zap.String("request_id", middleware.RequestIDFromContext(c)),
		zap.String("subject", middleware.SubjectFromContext(c)),
	)
	log.Info("pipeline run accepted", zap.String("query", opts.Query), zap.String("city", opts.City))

	h.spawn(func() {
		stats, err := h.runner.Run(h.base, opts)
		h.finish(opts.RunID, stats, err)
		if err != nil {
			log.Error("pipeline run failed", zap.Error(err))
		}
	})

	return Success(c, http.StatusAccepted, "run accepted", dto.RunAccepted{RunID: status.RunID})
}

// Get handles GET /runs/:run_id requests.
func (h *RunsHandler) Get(c echo.Context) error {
	runID, err := uuid.Parse(strings.TrimSpace(c.Param("run_id")))
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid run_id")
	}

	h.mu.Lock()
	h.pruneLocked()
	status, ok := h.runs[runID]
	var snapshot RunStatus
	if ok {
		snapshot = *status
	}
	h.mu.Unlock()

	if !ok || snapshot.OrgID != middleware.OrgIDFromContext(c) {
		return Error(c, http.StatusNotFound, "run not found")
	}
	return Success(c, http.StatusOK, "run status", snapshot)
}

func (h *RunsHandler) finish(runID uuid.UUID, stats pipeline.Stats, err error) {
	now := h.now().UTC()
	h.mu.Lock()
	defer h.mu.Unlock()

	status, ok := h.runs[runID]
	if !ok {
		return
	}
	status.Stats = &stats
	status.FinishedAt = &now
	status.State = RunStateFinished
	if err != nil {
		status.State = RunStateFailed
		status.Error = err.Error()
		if errors.Is(err, context.Canceled) {
			status.Error = "run cancelled"
		}
	}
}

// pruneLocked drops runs that finished more than the retention window ago.
// Running entries are never dropped. Callers hold h.mu.
func (h *RunsHandler) pruneLocked() {
	cutoff := h.now().Add(-h.retention)
	for id, status := range h.runs {
		if status.FinishedAt != nil && status.FinishedAt.Before(cutoff) {
			delete(h.runs, id)
		}
	}
}
