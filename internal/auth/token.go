// Package auth signs and verifies the HS256 tokens used for API access and
// OAuth state.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
)

// Audiences.
const (
	AudienceAPI         = "concierge-api"
	AudienceGoogleOAuth = "google-oauth"
)

// Tokens signs tenant-scoped JWTs with a shared secret.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

func NewTokens(secret string) (*Tokens, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("%w: jwt secret must be at least 16 characters", apperrors.ErrConfiguration)
	}
	return &Tokens{secret: []byte(secret), now: time.Now}, nil
}

// Sign issues a token whose subject is tenantID.
func (t *Tokens) Sign(tenantID uint64, audience string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(tenantID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify returns the tenant id carried in raw. An empty audience skips the
// audience check.
func (t *Tokens) Verify(raw, audience string) (uint64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, fmt.Errorf("%w: token expired", apperrors.ErrUnauthorized)
		}
		return 0, fmt.Errorf("%w: invalid token: %v", apperrors.ErrUnauthorized, err)
	}
	id, err := tenant.ParseID(claims.Subject)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject: %v", apperrors.ErrUnauthorized, err)
	}
	return id, nil
}
