package auth

import (
	"errors"
	"fmt"
	"time"

	"tieredmemory/internal/user"

	"github.com/golang-jwt/jwt/v5"
)

// Claims binds a session to both the relational user id and the
// memory-engine owner id, so protected handlers can scope vector-store
// operations to the caller without a database lookup per request.
type Claims struct {
	UserID   uint   `json:"userId"`
	OwnerID  string `json:"ownerId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWT signs a token for u, embedding the owner id the user's
// memories are filed under.
func GenerateJWT(secret string, u *user.User, duration time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID:   u.ID,
		OwnerID:  u.MemoryOwnerID(),
		Username: u.Username,
		Role:     string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseJWT validates the signature and expiry and returns the claims.
// Tokens without an owner id are rejected: every protected operation
// downstream scopes by it.
func ParseJWT(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.OwnerID == "" {
		return nil, errors.New("token carries no owner id")
	}
	return claims, nil
}
