package api

import (
	"context"
	"time"

	"github.com/linesmerrill/police-blotter-api/models"
)

// DefaultQueryTimeout is the timeout for database queries unless SetQueryTimeout overrides it
const DefaultQueryTimeout = 10 * time.Second

var queryTimeout = DefaultQueryTimeout

// SetQueryTimeout changes the timeout applied by WithQueryTimeout. Call it once at startup.
func SetQueryTimeout(d time.Duration) {
	if d > 0 {
		queryTimeout = d
	}
}

// WithQueryTimeout creates a context with query timeout
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, queryTimeout)
}

type actorKey struct{}

// WithActor stores the authenticated caller on the context
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated caller stored by Middleware
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(models.Actor)
	return actor, ok && actor.ID != ""
}
