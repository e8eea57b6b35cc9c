// Package auth issues and verifies the signed access tokens handed out at
// login. Tokens are HS256 JWTs carrying the user id and admin flag.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/userhub/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload: registered claims plus the user id and role.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string `json:"id"`
	IsAdmin bool   `json:"isAdmin"`
}

// GenerateToken signs a token for userID valid for validityDuration.
func GenerateToken(userID string, isAdmin bool, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID:  userID,
		IsAdmin: isAdmin,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies tokenString and returns its claims. Expired tokens
// yield common.ErrTokenExpired, anything else invalid common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
