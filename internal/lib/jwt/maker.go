package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims carries the account UID alongside the standard JWT claims.
type CustomClaims struct {
	AccountUID           string `json:"account_uid"`
	jwt.RegisteredClaims        // ExpiresAt, IssuedAt etc.
}

// GenerateToken creates a token for accountUID signed with the shared secret.
// The token lifetime is taken from the maker's TTL.
func (j *MakerImpl) GenerateToken(accountUID string) (string, error) {
	claims := CustomClaims{
		AccountUID: accountUID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// ParseToken parses the token, verifies the signature and expiry,
// and returns the claims when valid.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	return claims, nil
}
