package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trubo/mail-gateway/internal/core"
)

// Bearer tokens are self-verifying claims over (email, issue time) signed
// with the shared server secret. There is no server-side session store and
// no revocation path before expiry-by-convention.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func MintToken(email string, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		Email: NormalizeEmail(email),
	})
	return token.SignedString(secret)
}

// EmailFromToken validates the signature and returns the embedded email.
func EmailFromToken(tokenString string, secret []byte) (string, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, core.ErrUnauthorized
		}
		return secret, nil
	})
	if err != nil || !token.Valid || claims.Email == "" {
		return "", core.ErrUnauthorized
	}
	return claims.Email, nil
}
