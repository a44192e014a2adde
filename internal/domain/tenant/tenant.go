// Package tenant carries the active tenant identity through the system and
// defines the isolation failures. Every store operation and every dequeued
// job is bound to exactly one tenant; an operation without a resolved tenant
// id, or one that touches another tenant's rows, is rejected here.
package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrContextMissing indicates an operation was attempted without a resolved
// tenant id. Never retried.
var ErrContextMissing = errors.New("tenant context is missing")

// CrossTenantError indicates an entity read inside a tenant scope carried a
// different tenant id than the scope. This is a data-integrity violation: the
// enclosing transaction is aborted and the error is never retried.
type CrossTenantError struct {
	Expected uuid.UUID
	Actual   uuid.UUID
	Entity   string
}

func (e CrossTenantError) Error() string {
	return "cross-tenant access on " + e.Entity + ": scope " + e.Expected.String() + " read " + e.Actual.String()
}

// Is matches any CrossTenantError when the target carries zero ids
func (e CrossTenantError) Is(target error) bool {
	t, ok := target.(CrossTenantError)
	if !ok {
		return false
	}
	if t.Expected == uuid.Nil && t.Actual == uuid.Nil {
		return true
	}
	return e.Expected == t.Expected && e.Actual == t.Actual
}

// Retryable marks cross-tenant access as fatal for the job queue
func (e CrossTenantError) Retryable() bool { return false }

type ctxKey struct{}

// WithID returns a context carrying the given tenant id
func WithID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the tenant id from the context.
// Returns ErrContextMissing when no tenant id was resolved.
func FromContext(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(ctxKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrContextMissing
	}
	return id, nil
}

// Guard returns a CrossTenantError when the entity's tenant id does not match
// the scope's tenant id. Repositories call this on every row they hydrate.
func Guard(scope, actual uuid.UUID, entity string) error {
	if scope != actual {
		return CrossTenantError{Expected: scope, Actual: actual, Entity: entity}
	}
	return nil
}
