package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned for tokens that are malformed, expired, or
// signed with another key.
var ErrInvalidToken = errors.New("invalid token")

// Claims carried in the console's signed cookies.
type Claims struct {
	Data map[string]string `json:"data,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 tokens.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner creates a signer for secret.
func NewSigner(secret []byte, issuer string) *Signer {
	return &Signer{secret: secret, issuer: issuer, now: time.Now}
}

// Sign returns a token for subject that expires after ttl.
func (s *Signer) Sign(subject string, data map[string]string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Data: data,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates tokenString and returns its claims.
func (s *Signer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	return claims, nil
}
