package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tonight-api/internal/wire"
)

// Claims mirrors the provider's ID token payload. user_id carries the
// subject; sub is kept as a fallback.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type keySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// TokenVerifier checks RS256 bearer tokens against the provider's keys.
type TokenVerifier struct {
	keys     keySource
	audience string
	issuer   string
	now      func() time.Time
}

func NewTokenVerifier(keys keySource, audience, issuer string) *TokenVerifier {
	return &TokenVerifier{keys: keys, audience: audience, issuer: issuer, now: time.Now}
}

func (v *TokenVerifier) Authenticate(ctx context.Context, req *wire.Request) (*Identity, error) {
	raw, ok := req.BearerToken()
	if !ok {
		return nil, fmt.Errorf("%w: Authorization header", ErrMissingCredentials)
	}
	return v.Verify(ctx, raw)
}

// Verify validates signature, audience, issuer, exp and iat.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty bearer token", ErrMissingCredentials)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrMissingKeyID
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, classifyTokenError(err)
	}

	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidClaims)
	}

	id := &Identity{
		Subject:  subject,
		Email:    claims.Email,
		Audience: claims.Audience,
		Issuer:   claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	return id, nil
}

// classifyTokenError keeps keyfunc errors as they are and folds the jwt
// library's errors into ours.
func classifyTokenError(err error) error {
	for _, ours := range []error{ErrMissingKeyID, ErrUnknownKey, ErrKeyFetch} {
		if errors.Is(err, ours) {
			return fmt.Errorf("%w: %v", ours, err)
		}
	}
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
}
