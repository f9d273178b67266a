package testutil

import (
	"context"
	"net/http"

	"gatekeeper/internal/platform/middleware"
)

// WithOperator adds an operator to the request context, as the auth
// middleware does for requests carrying a valid token.
func WithOperator(req *http.Request, operator string) *http.Request {
	if operator == "" {
		return req
	}
	ctx := context.WithValue(req.Context(), middleware.ContextKeyOperator, operator)
	return req.WithContext(ctx)
}
