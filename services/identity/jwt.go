package identity

import (
	"context"
	"errors"
	"time"

	"openpaws/pkg/errutil"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

type tokenClaims struct {
	jwt.Claims
	Email    string         `json:"email"`
	Role     string         `json:"role"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// JWTVerifier validates access tokens signed by the identity provider with
// its shared HS256 secret.
type JWTVerifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
	now      func() time.Time
}

func NewJWTVerifier(secret, audience string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("identity: AUTH.JWT_SECRET is required in jwt mode")
	}
	return &JWTVerifier{
		secret:   []byte(secret),
		audience: audience,
		leeway:   30 * time.Second,
		now:      time.Now,
	}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, errutil.Unauthorized("invalid token", err)
	}

	var c tokenClaims
	if err := tok.Claims(v.secret, &c); err != nil {
		return nil, errutil.Unauthorized("invalid token", err)
	}

	expected := jwt.Expected{Time: v.now()}
	if v.audience != "" {
		expected.AnyAudience = jwt.Audience{v.audience}
	}
	if err := c.ValidateWithLeeway(expected, v.leeway); err != nil {
		return nil, errutil.Unauthorized("invalid token", err)
	}
	if c.Expiry == nil {
		return nil, errutil.Unauthorized("invalid token", errors.New("token has no expiry"))
	}
	if c.Subject == "" {
		return nil, errutil.Unauthorized("invalid token", errors.New("token has no subject"))
	}

	return &Identity{ID: c.Subject, Email: c.Email, Role: c.Role, Metadata: c.Metadata}, nil
}
