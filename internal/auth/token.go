// Package auth verifies the bearer tokens minted by the marketplace identity
// provider. Users register and sign in there; this service only trusts the
// signed claims.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vedran77/agroconnect/internal/domain"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrInvalidClaims = errors.New("invalid token claims")
)

const DefaultTokenTTL = 24 * time.Hour

type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Parse checks the signature and expiry of tokenStr and returns the caller
// it names.
func (v *Verifier) Parse(tokenStr string) (domain.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Identity{}, ErrInvalidClaims
	}
	sub := strings.TrimSpace(claims.Subject)
	name := strings.TrimSpace(claims.Name)
	if sub == "" || name == "" {
		return domain.Identity{}, ErrInvalidClaims
	}

	return domain.Identity{UserID: sub, DisplayName: name, Role: role}, nil
}

// Issue signs a token for identity valid for ttl.
func (v *Verifier) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	if !identity.Role.Valid() {
		return "", fmt.Errorf("issuing token: %w", ErrInvalidClaims)
	}
	now := v.now()
	claims := Claims{
		Name: identity.DisplayName,
		Role: identity.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
