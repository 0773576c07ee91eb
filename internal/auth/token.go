package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed assertion handed out as the bearer string. The
// access token record id travels in the registered ID (jti) claim so the
// verifier can confirm store-side revocation state.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// signAccessToken binds the persisted access token record into a bearer
// string signed with the issuer's private key.
func (s *Service) signAccessToken(rec *AccessToken, now time.Time) (string, error) {
	if s.signKey == nil {
		return "", errors.New("auth: signing key not configured")
	}
	claims := Claims{
		Scopes: rec.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   rec.UserID,
			Audience:  jwt.ClaimStrings{rec.ClientID},
			ID:        rec.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// parseAccessToken checks structure, signature and time claims, in that
// order, and maps each failure mode onto its own sentinel. Store-side
// revocation is checked separately by Verify.
func (s *Service) parseAccessToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrMalformedToken
	}
	if s.verifyKey == nil {
		return nil, errors.New("auth: verification key not configured")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodRS256 {
				return nil, ErrSignatureInvalid
			}
			return s.verifyKey, nil
		},
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
		jwt.WithIssuedAt(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return nil, ErrExpiredToken
	default:
		return nil, ErrMalformedToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrSignatureInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.ID) == "" {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

// ParseSigningKey reads a PEM-encoded RSA private key.
func ParseSigningKey(pemData string) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemData))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return key, nil
}

// ParseVerificationKey reads a PEM-encoded RSA public key.
func ParseVerificationKey(pemData string) (*rsa.PublicKey, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemData))
	if err != nil {
		return nil, fmt.Errorf("parse verification key: %w", err)
	}
	return key, nil
}
