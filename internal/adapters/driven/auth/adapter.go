package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Ensure Adapter implements IdentityTokens
var _ driven.IdentityTokens = (*Adapter)(nil)

// identityClaims binds a wallet identity to a token
type identityClaims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

// Adapter mints and verifies identity tokens using HMAC-signed JWTs
type Adapter struct {
	secret []byte
	issuer string
}

// NewAdapter creates a new token adapter with the given signing secret
func NewAdapter(secret string) *Adapter {
	return &Adapter{
		secret: []byte(secret),
		issuer: "docvault-core",
	}
}

// Mint issues a signed token for the identity, valid for ttl
func (a *Adapter) Mint(identity string, ttl time.Duration) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("%w: identity is required", domain.ErrValidation)
	}

	now := time.Now()
	claims := identityClaims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Verify validates a token and returns the bound identity
func (a *Adapter) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &identityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAccessDenied, err)
	}

	claims, ok := token.Claims.(*identityClaims)
	if !ok || !token.Valid || claims.Identity == "" {
		return "", fmt.Errorf("%w: invalid token claims", domain.ErrAccessDenied)
	}
	return claims.Identity, nil
}
