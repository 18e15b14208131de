// Package auth holds the signed-in identity of a client. Access tokens are
// HS256 JWTs whose subject is the user id.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/layover/internal/backend"
)

// Claims are the access token claims.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs an access token for u valid for ttl.
func Issue(secret []byte, u backend.User, ttl time.Duration) (string, error) {
	if u.ID == "" {
		return "", errors.New("issue token: empty user id")
	}
	now := time.Now()
	claims := Claims{
		Email: u.Email,
		Name:  u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns its user and
// expiry time.
func Verify(secret []byte, token string) (*backend.User, time.Time, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("verify token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, time.Time{}, errors.New("verify token: invalid claims")
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return &backend.User{ID: claims.Subject, Email: claims.Email, Name: claims.Name}, exp, nil
}
