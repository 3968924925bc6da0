// Package tenant carries the tenant (user) id and request id through contexts.
package tenant

import (
	"context"
	"errors"
	"strconv"
)

type contextKey string

const (
	tenantIDKey  contextKey = "tenantID"
	requestIDKey contextKey = "requestID"
)

// ErrTenantNotFound is returned when no tenant id is present in the context.
var ErrTenantNotFound = errors.New("tenant ID not found in context")

// ErrNoRequestIDInContext is returned when no request ID is found in context.
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// WithTenantID scopes ctx to a tenant.
func WithTenantID(ctx context.Context, tenantID uint64) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// FromContext extracts the tenant id. Zero is never a valid tenant.
func FromContext(ctx context.Context) (uint64, error) {
	id, ok := ctx.Value(tenantIDKey).(uint64)
	if !ok || id == 0 {
		return 0, ErrTenantNotFound
	}
	return id, nil
}

// MustFromContext extracts the tenant id or panics.
func MustFromContext(ctx context.Context) uint64 {
	id, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseID parses a decimal tenant id as it appears in URLs and NATS subjects.
func ParseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, ErrTenantNotFound
	}
	return id, nil
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromRequestIDContext extracts the request ID from the context.
func FromRequestIDContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}
