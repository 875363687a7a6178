package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/octobees/leadgen/internal/service/scoring"
	"github.com/octobees/leadgen/internal/service/trust"
)

func postJSON(target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAnalyzeHandler_TrustQuick(t *testing.T) {
	handler := NewAnalyzeHandler(trust.New(nil), nil)

	c, rec := postJSON("/analyze/trust", `{"website":"http://bit.ly/xyz"}`)
	if err := handler.Trust(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Data trust.Verdict `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Data.TrustScore > 20 || !payload.Data.IsLikelySpam {
		t.Fatalf("expected spam verdict, got %+v", payload.Data)
	}
}

func TestAnalyzeHandler_TrustValidation(t *testing.T) {
	handler := NewAnalyzeHandler(trust.New(nil), nil)

	for _, body := range []string{`{"website":"  "}`, `{"website":`} {
		c, rec := postJSON("/analyze/trust", body)
		if err := handler.Trust(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestAnalyzeHandler_Score(t *testing.T) {
	handler := NewAnalyzeHandler(trust.New(nil), nil)

	c, rec := postJSON("/analyze/score", `{"rating":3.2,"review_count":3,"business_status":"OPERATIONAL"}`)
	if err := handler.Score(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Data scoring.ScoreResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Data.Score != 67 {
		t.Fatalf("expected score 67, got %d", payload.Data.Score)
	}
}

type stubScorer struct {
	got scoring.BusinessSignals
}

func (s *stubScorer) Score(input scoring.BusinessSignals) scoring.ScoreResult {
	s.got = input
	return scoring.ScoreResult{Score: 42, Reasons: []string{"stub"}}
}

func TestAnalyzeHandler_ScoreUsesInjectedScorer(t *testing.T) {
	scorer := &stubScorer{}
	handler := NewAnalyzeHandler(trust.New(nil), scorer)

	c, rec := postJSON("/analyze/score", `{"website":" https://acme.pagecraft.io ","review_count":4}`)
	if err := handler.Score(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if scorer.got.Website != "https://acme.pagecraft.io" || scorer.got.ReviewCount != 4 {
		t.Fatalf("unexpected signals passed to scorer: %+v", scorer.got)
	}
	if !strings.Contains(rec.Body.String(), `"score":42`) {
		t.Fatalf("expected injected score in response, got %s", rec.Body.String())
	}
}

func TestAnalyzeHandler_ScoreValidation(t *testing.T) {
	handler := NewAnalyzeHandler(trust.New(nil), nil)

	for _, body := range []string{`{"rating":7}`, `{"review_count":-1}`} {
		c, rec := postJSON("/analyze/score", body)
		if err := handler.Score(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}
