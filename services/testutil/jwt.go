package testutil

import (
	"time"

	"github.com/bellaamanda2500291/decentralized-space-asset-trading/libs/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func GenerateJWT(principal uuid.UUID, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	claims := auth.Claims{
		Roles: []string{"trader"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "dsx-platform",
			Subject:   principal.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
