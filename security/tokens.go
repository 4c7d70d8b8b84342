package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	PurposeAccess = "access"
	PurposeReset  = "reset"

	tokenIssuer = "gatekeeper"
)

// ErrInvalidToken is the only failure Verify reports, whatever went wrong.
var ErrInvalidToken = errors.New("invalid token")

func init() {
	// exp keeps milliseconds, a token stays valid until mint time + ttl
	jwt.TimePrecision = time.Millisecond
}

type tokenClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenCodec mints and verifies HS256 signed, stateless tokens. Time claims
// carry milliseconds.
type TokenCodec struct {
	secret    []byte
	accessTTL time.Duration
	resetTTL  time.Duration
}

func NewTokenCodec(secret string, accessTTL, resetTTL time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token signing secret is empty")
	}
	if accessTTL <= 0 || resetTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &TokenCodec{secret: []byte(secret), accessTTL: accessTTL, resetTTL: resetTTL}, nil
}

func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

func (c *TokenCodec) ResetTTL() time.Duration {
	return c.resetTTL
}

func (c *TokenCodec) MintAccess(principalID string, now time.Time) (string, error) {
	return c.mint(principalID, PurposeAccess, now, c.accessTTL)
}

func (c *TokenCodec) MintReset(email string, now time.Time) (string, error) {
	return c.mint(email, PurposeReset, now, c.resetTTL)
}

func (c *TokenCodec) mint(subject, purpose string, now time.Time, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is empty")
	}
	claims := tokenClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify returns the subject of token when its signature is valid, its
// purpose equals expectedPurpose and now is before its expiry.
func (c *TokenCodec) Verify(token, expectedPurpose string, now time.Time) (string, error) {
	claims := tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil || parsed == nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Purpose != expectedPurpose || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
