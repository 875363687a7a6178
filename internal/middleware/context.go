package middleware

import "github.com/labstack/echo/v4"

// Context keys used to store authentication metadata.
const (
	ContextKeySubject   = "subject"
	ContextKeyOrgID     = "org_id"
	ContextKeyUserRole  = "user_role"
	ContextKeyRequestID = "request_id"
)

// OrgIDFromContext returns the organisation of the authenticated caller.
func OrgIDFromContext(c echo.Context) string {
	if val, ok := c.Get(ContextKeyOrgID).(string); ok {
		return val
	}
	return ""
}

// SubjectFromContext returns the token subject of the authenticated caller.
func SubjectFromContext(c echo.Context) string {
	if val, ok := c.Get(ContextKeySubject).(string); ok {
		return val
	}
	return ""
}
