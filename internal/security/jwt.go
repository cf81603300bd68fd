package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// MakeIDToken signs an HS256 token for uid. The returned jti identifies the
// server-side session so sign-out can revoke it.
func MakeIDToken(secret, uid, email string, ttl time.Duration) (token, jti string, err error) {
	jti, err = NewID()
	if err != nil {
		return "", "", err
	}
	now := time.Now()
	c := Claims{
		UID: uid, Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   uid,
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	token, err = t.SignedString([]byte(secret))
	return token, jti, err
}

func ParseIDToken(secret, token string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	if c.UID == "" {
		c.UID = c.Subject
	}
	return c, nil
}
