package contextx

import (
	"context"
)

const (
	ActorIDKey   contextKey = "helix.actor_id"
	ActorNameKey contextKey = "helix.actor_name"
	RemoteIPKey  contextKey = "helix.remote_ip"
)

// WithActor stamps the authenticated principal on the context so audit
// events recorded anywhere below pick it up without plumbing.
func WithActor(ctx context.Context, id, name string) context.Context {
	ctx = context.WithValue(ctx, ActorIDKey, id)
	return context.WithValue(ctx, ActorNameKey, name)
}

func GetActorID(ctx context.Context) string {
	return getString(ctx, ActorIDKey, "")
}

func GetActorName(ctx context.Context) string {
	return getString(ctx, ActorNameKey, "")
}

func WithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, ip)
}

func GetRemoteIP(ctx context.Context) string {
	return getString(ctx, RemoteIPKey, "")
}
