package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	tests := map[string]struct {
		db         Pinger
		expectCode int
	}{
		"no database": {expectCode: http.StatusOK},
		"healthy":     {db: pingFunc(func(context.Context) error { return nil }), expectCode: http.StatusOK},
		"unreachable": {db: pingFunc(func(context.Context) error { return errors.New("dial tcp") }), expectCode: http.StatusServiceUnavailable},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)

			if err := NewHealthHandler(tt.db).Check(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.expectCode {
				t.Fatalf("expected %d, got %d", tt.expectCode, rec.Code)
			}
		})
	}
}
