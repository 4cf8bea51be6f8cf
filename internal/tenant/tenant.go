// Package tenant carries the tenant scope of a request on its context.
// Every repository query reads the scope explicitly; there is no ambient
// global that rewrites queries behind the caller's back.
package tenant

import (
	"context"

	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
)

type contextKey struct{}

// WithTenant returns a context scoped to the given tenant.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, contextKey{}, tenantID)
}

// FromContext extracts the tenant scope, failing when a caller forgot to set it.
func FromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(contextKey{}).(string)
	if !ok || id == "" {
		return "", appErrors.Clone(appErrors.ErrForbidden, "missing tenant scope")
	}
	return id, nil
}
