// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultJWTGenerator generates JWT tokens for authenticated users.
type DefaultJWTGenerator struct {
	// privateKey is the key used to sign tokens
	privateKey crypto.PrivateKey
	// publicKey is the key used to verify tokens
	publicKey crypto.PublicKey
	// method is the signing method derived from the key type
	method jwt.SigningMethod
	// issuer is the JWT issuer claim
	issuer string
	// audience is the JWT audience claim
	audience []string
	// expiresIn is how long tokens are valid
	expiresIn time.Duration
	// keyID is the key identifier for the kid header
	keyID string
}

// JWTGeneratorConfig contains configuration for the JWT generator.
type JWTGeneratorConfig struct {
	// PrivateKey is the key used to sign tokens (required). Supported
	// types: ed25519.PrivateKey, *ecdsa.PrivateKey, *rsa.PrivateKey and
	// []byte for HMAC.
	PrivateKey crypto.PrivateKey
	// Issuer is the JWT issuer claim (default: "go-passkey")
	Issuer string
	// Audience is the JWT audience claim (default: ["go-passkey"])
	Audience []string
	// ExpiresIn is how long tokens are valid (default: 1 hour)
	ExpiresIn time.Duration
	// KeyID is the key identifier for the kid header (optional)
	KeyID string
}

// NewDefaultJWTGenerator creates a new JWT generator with the given configuration.
func NewDefaultJWTGenerator(config *JWTGeneratorConfig) (*DefaultJWTGenerator, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	method, publicKey, err := signingMethodForKey(config.PrivateKey)
	if err != nil {
		return nil, err
	}

	// Set defaults
	issuer := config.Issuer
	if issuer == "" {
		issuer = "go-passkey"
	}

	audience := config.Audience
	if len(audience) == 0 {
		audience = []string{"go-passkey"}
	}

	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	return &DefaultJWTGenerator{
		privateKey: config.PrivateKey,
		publicKey:  publicKey,
		method:     method,
		issuer:     issuer,
		audience:   audience,
		expiresIn:  expiresIn,
		keyID:      config.KeyID,
	}, nil
}

// GenerateToken creates a JWT asserting the user's identity.
func (g *DefaultJWTGenerator) GenerateToken(ctx context.Context, userID string) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"iss": g.issuer,
		"aud": g.audience,
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(g.expiresIn).Unix(),
		"nbf": now.Unix(),
	}

	token := jwt.NewWithClaims(g.method, claims)
	if g.keyID != "" {
		token.Header["kid"] = g.keyID
	}

	return token.SignedString(g.privateKey)
}

// VerifyToken verifies a JWT and returns the claims.
func (g *DefaultJWTGenerator) VerifyToken(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != g.method.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
			}
			return g.publicKey, nil
		},
		jwt.WithIssuer(g.issuer),
		jwt.WithAudience(g.audience[0]),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	return claims, nil
}

// PublicKey returns the public key for token verification.
func (g *DefaultJWTGenerator) PublicKey() crypto.PublicKey {
	return g.publicKey
}

// Issuer returns the configured issuer.
func (g *DefaultJWTGenerator) Issuer() string {
	return g.issuer
}

// Audience returns the configured audience.
func (g *DefaultJWTGenerator) Audience() []string {
	return g.audience
}

// ExpiresIn returns the token expiration duration.
func (g *DefaultJWTGenerator) ExpiresIn() time.Duration {
	return g.expiresIn
}

// signingMethodForKey derives the JWT signing method and verification key
// from the private key's type.
func signingMethodForKey(key crypto.PrivateKey) (jwt.SigningMethod, crypto.PublicKey, error) {
	switch k := key.(type) {
	case ed25519.PrivateKey:
		return jwt.SigningMethodEdDSA, k.Public(), nil
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return jwt.SigningMethodES256, k.Public(), nil
		case elliptic.P384():
			return jwt.SigningMethodES384, k.Public(), nil
		case elliptic.P521():
			return jwt.SigningMethodES512, k.Public(), nil
		default:
			return nil, nil, fmt.Errorf("unsupported ECDSA curve: %s", k.Curve.Params().Name)
		}
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256, k.Public(), nil
	case []byte:
		return jwt.SigningMethodHS256, k, nil
	default:
		return nil, nil, fmt.Errorf("unsupported private key type: %T", key)
	}
}
