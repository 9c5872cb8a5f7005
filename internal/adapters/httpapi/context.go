package httpapi

import (
	"context"

	"github.com/iglesia-ietq/asistencia-api/internal/platform/auth/jwtverifier"
)

type identityKey struct{}

func WithIdentity(ctx context.Context, id jwtverifier.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (jwtverifier.Identity, bool) {
	v, ok := ctx.Value(identityKey{}).(jwtverifier.Identity)
	return v, ok && v.Subject != ""
}
