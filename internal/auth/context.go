package auth

import (
	"context"

	"github.com/segyhp/loan-tracker/internal/domain"
)

type actorKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated caller stored by the JWT middleware
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}
