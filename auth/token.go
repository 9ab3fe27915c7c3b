package auth

import (
	"chat-notify/domain"
	"chat-notify/errors"
	"context"
	"crypto"
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultIssuer   = "chat_server"
	DefaultAudience = "chat_web"
)

// Claims is the identity minted by the chat server.
type Claims struct {
	UserID      int64  `json:"id"`
	WorkspaceID int64  `json:"ws_id"`
	FullName    string `json:"fullname"`
	Email       string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier checks EdDSA signed bearer tokens against the chat server's public key.
type Verifier struct {
	key      crypto.PublicKey
	issuer   string
	audience string
}

func NewVerifier(key crypto.PublicKey, issuer, audience string) *Verifier {
	return &Verifier{key: key, issuer: issuer, audience: audience}
}

// LoadVerifier reads a PEM encoded Ed25519 public key.
func LoadVerifier(path, issuer, audience string) (*Verifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	key, err := jwt.ParseEdPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return NewVerifier(key, issuer, audience), nil
}

// ValidateToken parses the token and checks its signature, issuer, audience and expiration.
func (v *Verifier) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.ErrUnauthorized
	}
	if err := ValidateClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Authenticate resolves a bearer credential into a user identity.
func (v *Verifier) Authenticate(_ context.Context, credential string) (domain.UserID, error) {
	if credential == "" {
		return 0, fmt.Errorf("%w: missing credential", errors.ErrUnauthorized)
	}
	claims, err := v.ValidateToken(credential)
	if err != nil {
		return 0, err
	}
	return domain.UserID(claims.UserID), nil
}

// Signer mints tokens. Production tokens come from the chat server;
// this is used by tools and tests.
type Signer struct {
	key      ed25519.PrivateKey
	issuer   string
	audience string
}

func NewSigner(key ed25519.PrivateKey, issuer, audience string) *Signer {
	return &Signer{key: key, issuer: issuer, audience: audience}
}

// GenerateToken creates a signed JWT for a specific user.
func (s *Signer) GenerateToken(claims Claims, duration time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.key)
}

// LoadSigner reads a PEM encoded Ed25519 private key.
func LoadSigner(path, issuer, audience string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := jwt.ParseEdPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("parse private key: not an Ed25519 key")
	}
	return NewSigner(edKey, issuer, audience), nil
}
