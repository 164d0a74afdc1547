// Package jwt implements generation and parsing of the JWT tokens the main
// application issues to builder accounts. The billing API only needs the
// account UID out of the token; the rest of the identity lives in the
// account service.
package jwt

import (
	"time"
)

// Maker describes generation and parsing of account tokens.
type Maker interface {
	// GenerateToken issues a token for the given account UID.
	GenerateToken(accountUID string) (string, error)
	// ParseToken returns *CustomClaims when the token is valid.
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl implements Maker with an HMAC secret shared with the
// main application and a token TTL.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
}

// NewJWTMaker creates a MakerImpl from the shared secret and TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
