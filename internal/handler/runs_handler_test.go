package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	middleware "github.com/octobees/leadgen/internal/middleware"
	"github.com/octobees/leadgen/internal/service/pipeline"
)

type stubRunner struct {
	calls []pipeline.Options
	stats pipeline.Stats
	err   error
}

func (s *stubRunner) Run(ctx context.Context, opts pipeline.Options) (pipeline.Stats, error) {
	s.calls = append(s.calls, opts)
	stats := s.stats
	stats.RunID = opts.RunID
	return stats, s.err
}

func newRunsHandler(runner RunExecutor) *RunsHandler {
	h := NewRunsHandler(context.Background(), runner, nil)
	h.spawn = func(f func()) { f() }
	return h
}

func submitRun(t *testing.T, h *RunsHandler, body string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	c, rec := postJSON("/runs", body)
	c.Set(middleware.ContextKeyOrgID, "acme-agency")
	c.Set(middleware.ContextKeySubject, "ops-bot")
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var payload struct {
		Data struct {
			RunID string `json:"run_id"`
		} `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	return rec, payload.Data.RunID
}

func getRun(t *testing.T, h *RunsHandler, orgID, runID string) (*httptest.ResponseRecorder, RunStatus) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/runs/"+runID, nil), rec)
	c.Set(middleware.ContextKeyOrgID, orgID)
	c.SetParamNames("run_id")
	c.SetParamValues(runID)
	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var payload struct {
		Data RunStatus `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	return rec, payload.Data
}

func TestRunsHandler_CreateAndGet(t *testing.T) {
	runner := &stubRunner{stats: pipeline.Stats{Seen: 4, Saved: 3, SkippedScore: 1}}
	h := newRunsHandler(runner)

	rec, runID := submitRun(t, h, `{"query":"plumber","city":"Austin","lat":30.26,"lng":-97.74,"enrich_emails":true,"min_score":40}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if runID == "" {
		t.Fatalf("expected run id in response")
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected one run, got %d", len(runner.calls))
	}
	opts := runner.calls[0]
	if opts.OrgID != "acme-agency" || !opts.EnrichEmails || opts.MinScore == nil || *opts.MinScore != 40 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.RunID.String() != runID {
		t.Fatalf("expected run id %s to be passed to runner, got %s", runID, opts.RunID)
	}

	rec, status := getRun(t, h, "acme-agency", runID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if status.State != RunStateFinished || status.Stats == nil || status.Stats.Saved != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.FinishedAt == nil {
		t.Fatalf("expected finished timestamp")
	}

	rec, _ = getRun(t, h, "other-agency", runID)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected runs to be scoped to the organisation, got %d", rec.Code)
	}
}

func TestRunsHandler_Failed(t *testing.T) {
	h := newRunsHandler(&stubRunner{err: errors.New("search page 0: places quota exceeded")})

	_, runID := submitRun(t, h, `{"query":"plumber","city":"Austin"}`)
	_, status := getRun(t, h, "acme-agency", runID)
	if status.State != RunStateFailed || status.Error == "" {
		t.Fatalf("expected failed status, got %+v", status)
	}
}

func TestRunsHandler_Validation(t *testing.T) {
	runner := &stubRunner{}
	h := newRunsHandler(runner)

	for _, body := range []string{`{"city":"Austin"}`, `{"query":"plumber"}`, `{"query":"plumber","city":"Austin","lat":120}`, `not json`} {
		rec, _ := submitRun(t, h, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
	if len(runner.calls) != 0 {
		t.Fatalf("expected no runs to start")
	}
}

func TestRunsHandler_GetUnknown(t *testing.T) {
	h := newRunsHandler(&stubRunner{})

	rec, _ := getRun(t, h, "acme-agency", "not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec, _ = getRun(t, h, "acme-agency", "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRunsHandler_EvictsFinishedRunsAfterRetention(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := newRunsHandler(&stubRunner{})
	h.now = func() time.Time { return clock }

	_, oldRun := submitRun(t, h, `{"query":"plumber","city":"Austin","lat":30.26,"lng":-97.74}`)
	if rec, _ := getRun(t, h, "acme-agency", oldRun); rec.Code != http.StatusOK {
		t.Fatalf("expected finished run to be queryable, got %d", rec.Code)
	}

	clock = clock.Add(RunRetention - time.Minute)
	if rec, _ := getRun(t, h, "acme-agency", oldRun); rec.Code != http.StatusOK {
		t.Fatalf("expected run inside retention window, got %d", rec.Code)
	}

	clock = clock.Add(2 * time.Minute)
	_, newRun := submitRun(t, h, `{"query":"roofer","city":"Austin","lat":30.26,"lng":-97.74}`)
	if rec, _ := getRun(t, h, "acme-agency", oldRun); rec.Code != http.StatusNotFound {
		t.Fatalf("expected expired run to be evicted, got %d", rec.Code)
	}
	if rec, _ := getRun(t, h, "acme-agency", newRun); rec.Code != http.StatusOK {
		t.Fatalf("expected fresh run to stay, got %d", rec.Code)
	}
	if len(h.runs) != 1 {
		t.Fatalf("expected one tracked run, got %d", len(h.runs))
	}
}

func TestRunsHandler_KeepsRunningRuns(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := NewRunsHandler(context.Background(), &stubRunner{}, nil)
	h.now = func() time.Time { return clock }
	h.spawn = func(func()) {}

	_, runID := submitRun(t, h, `{"query":"plumber","city":"Austin","lat":30.26,"lng":-97.74}`)
	clock = clock.Add(10 * RunRetention)

	rec, status := getRun(t, h, "acme-agency", runID)
	if rec.Code != http.StatusOK || status.State != RunStateRunning {
		t.Fatalf("expected running run to be kept, got %d %+v", rec.Code, status)
	}
}
