package types

import "context"

// Actor represents the resolved identity performing an operation. It arrives
// from the authentication layer, which is an external collaborator; the
// engine only consumes it for the capability predicate.
type Actor struct {
	ID       string
	Role     ActorRole
	AgencyID string
	// ClientID is set for client-side actors (client members and primary
	// account holders).
	ClientID string
}

// IsPlatformAdmin reports whether the actor is a platform administrator.
func (a Actor) IsPlatformAdmin() bool {
	return a.Role == RoleAdmin
}

type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
