package auth

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// TokenProvider issues and checks dashboard session tokens.
type TokenProvider interface {
	GenerateSessionToken(s domain.Session) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	GetJWKS() (*JWKS, error)
}

// Claims carries the authorization data of a dashboard session.
type Claims struct {
	UserID        uuid.UUID `json:"sub"`
	Email         string    `json:"email"`
	Role          string    `json:"role,omitempty"`
	Websites      []string  `json:"websites"`
	ExternalToken string    `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// Session converts the claims back into the domain view.
func (c *Claims) Session() domain.Session {
	return domain.Session{
		UserID:        c.UserID,
		Email:         c.Email,
		Role:          c.Role,
		Websites:      c.Websites,
		ExternalToken: c.ExternalToken,
	}
}

// JWK is the public half of the signing key as published on the JWKS route.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// clockSkew is tolerated on iat/nbf/exp between dashboard hosts.
const clockSkew = time.Minute

// JWTProvider signs dashboard sessions with RS256. The key id is derived from
// the public key, so a rotated key gets a new kid.
type JWTProvider struct {
	key    *rsa.PrivateKey
	kid    string
	issuer string
	ttl    time.Duration
}

// NewJWTProvider takes the PEM text of an RSA private key (PKCS#1 or PKCS#8).
func NewJWTProvider(privateKeyPEM, issuer string, ttl time.Duration) (*JWTProvider, error) {
	key, err := parseRSAKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	kid, err := keyID(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTProvider{key: key, kid: kid, issuer: issuer, ttl: ttl}, nil
}

func parseRSAKey(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("jwt key: no PEM block found")
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwt key: %w", err)
	}
	k, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("jwt key: want RSA, got %T", parsed)
	}
	return k, nil
}

func keyID(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("jwt key id: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:8]), nil
}

// GenerateSessionToken signs the session's authorization data.
func (p *JWTProvider) GenerateSessionToken(s domain.Session) (string, error) {
	now := time.Now()
	websites := s.Websites
	if websites == nil {
		websites = []string{}
	}
	claims := Claims{
		UserID:        s.UserID,
		Email:         s.Email,
		Role:          s.Role,
		Websites:      websites,
		ExternalToken: s.ExternalToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.kid
	signed, err := token.SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature, kid, issuer and lifetime.
func (p *JWTProvider) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != p.kid {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return &p.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithLeeway(clockSkew),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetJWKS publishes the verification key.
func (p *JWTProvider) GetJWKS() (*JWKS, error) {
	pub := &p.key.PublicKey
	return &JWKS{
		Keys: []JWK{{
			Kty: "RSA",
			Kid: p.kid,
			Use: "sig",
			Alg: jwt.SigningMethodRS256.Alg(),
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}, nil
}
