package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/octobees/leadgen/internal/middleware"
)

// APIResponse is the envelope every endpoint returns. RequestID echoes the
// X-Request-ID assigned by the request id middleware.
type APIResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Meta      *PageMeta `json:"meta,omitempty"`
}

// PageMeta describes the page returned by a listing endpoint.
type PageMeta struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Count   int `json:"count"`
}

// Success sends a successful response.
func Success(c echo.Context, status int, message string, data any) error {
	if status == 0 {
		status = http.StatusOK
	}
	payload := envelope(c, "success", message)
	payload.Data = data
	return c.JSON(status, payload)
}

// Paginated sends one page of a listing with its paging metadata.
func Paginated(c echo.Context, message string, data any, meta PageMeta) error {
	payload := envelope(c, "success", message)
	payload.Data = data
	payload.Meta = &meta
	return c.JSON(http.StatusOK, payload)
}

// Error sends an error response.
func Error(c echo.Context, status int, message string) error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, envelope(c, "error", message))
}

func envelope(c echo.Context, status, message string) APIResponse {
	return APIResponse{
		Status:    status,
		Message:   message,
		RequestID: middleware.RequestIDFromContext(c),
	}
}
