// Package authz decides whether a user may perform an operation and seeds the
// role/permission catalog those decisions are made against.
package authz

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/domain/user"
	"github.com/geocoder89/taskflow/internal/observability"
	"github.com/geocoder89/taskflow/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/geocoder89/taskflow/internal/authz"

// Engine answers permission checks by walking user -> role -> permission.
// Without a cache the walk is recomputed on every call.
type Engine struct {
	graph  store.RBACRepository
	cache  PermissionCache
	prom   *observability.Prom
	log    *slog.Logger
	tracer trace.Tracer
}

type EngineOption func(*Engine)

func WithCache(c PermissionCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

func WithMetrics(p *observability.Prom) EngineOption {
	return func(e *Engine) { e.prom = p }
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

func NewEngine(graph store.RBACRepository, opts ...EngineOption) *Engine {
	e := &Engine{
		graph:  graph,
		log:    slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsAuthorized reports whether any role held by u carries p. Superuser status
// is not consulted.
func (e *Engine) IsAuthorized(ctx context.Context, u user.User, p rbac.PermissionName) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "authz.IsAuthorized", trace.WithAttributes(
		attribute.Int64("user.id", u.ID),
		attribute.String("authz.permission", string(p)),
	))
	defer span.End()

	perms, err := e.PermissionsFor(ctx, u.ID)
	allowed := err == nil && slices.Contains(perms, p)

	if e.prom != nil {
		e.prom.ObserveDecision(string(p), allowed, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "permission lookup failed")
		return false, err
	}

	span.SetAttributes(attribute.Bool("authz.allowed", allowed))
	return allowed, nil
}

// PermissionsFor returns the union of permissions across the user's roles.
func (e *Engine) PermissionsFor(ctx context.Context, userID int64) ([]rbac.PermissionName, error) {
	if e.cache == nil {
		return e.loadPermissions(ctx, userID)
	}

	perms, ok, err := e.cache.Get(ctx, userID)
	switch {
	case err != nil:
		// a broken cache degrades to reading the graph
		e.observeCache("error")
		e.log.WarnContext(ctx, "authz cache read failed", "backend", e.cache.Name(), "user_id", userID, "err", err)
	case ok:
		e.observeCache("hit")
		return perms, nil
	default:
		e.observeCache("miss")
	}

	// The generation must be read before the graph. An invalidation that
	// lands in between bumps it and the write below is dropped.
	gen, genErr := e.cache.Generation(ctx, userID)

	perms, err = e.loadPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if genErr != nil {
		e.log.WarnContext(ctx, "authz cache generation read failed", "backend", e.cache.Name(), "user_id", userID, "err", genErr)
		return perms, nil
	}

	stored, err := e.cache.Set(ctx, userID, gen, perms)
	switch {
	case err != nil:
		e.log.WarnContext(ctx, "authz cache write failed", "backend", e.cache.Name(), "user_id", userID, "err", err)
	case !stored:
		e.observeCache("stale")
	}
	return perms, nil
}

func (e *Engine) loadPermissions(ctx context.Context, userID int64) ([]rbac.PermissionName, error) {
	perms, err := e.graph.PermissionNamesOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load permissions for user %d: %w", userID, err)
	}
	return perms, nil
}

// Invalidate drops the cached permission set of one user.
func (e *Engine) Invalidate(ctx context.Context, userID int64) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Invalidate(ctx, userID)
}

// InvalidateAll drops every cached permission set.
func (e *Engine) InvalidateAll(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.InvalidateAll(ctx)
}

func (e *Engine) observeCache(outcome string) {
	if e.prom != nil {
		e.prom.ObserveCacheLookup(e.cache.Name(), outcome)
	}
}
