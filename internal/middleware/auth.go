package middleware

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tonight-api/internal/auth"
	"tonight-api/internal/metrics"
	"tonight-api/internal/wire"
)

// Handler answers one parsed request with a JSON-serializable value or a
// grpc status error.
type Handler func(ctx context.Context, req *wire.Request) (any, error)

type ctxKey string

const IdentityKey ctxKey = "identity"

// Auth runs the authenticator before next. Every failure becomes the same
// Unauthenticated outcome; the reason only differs in the message.
func Auth(authn auth.Authenticator) func(Handler) Handler {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *wire.Request) (any, error) {
			id, err := authn.Authenticate(ctx, req)
			if err != nil {
				metrics.AuthFailures.WithLabelValues(auth.Reason(err)).Inc()
				zerolog.Ctx(ctx).Warn().Err(err).Msg("authentication failed")
				return nil, status.Error(codes.Unauthenticated, "Non autorizzato: "+err.Error())
			}
			ctx = context.WithValue(ctx, IdentityKey, id)
			return next(ctx, req)
		}
	}
}

// IdentityFrom returns the caller stored by Auth.
func IdentityFrom(ctx context.Context) (*auth.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(*auth.Identity)
	return id, ok && id != nil
}
