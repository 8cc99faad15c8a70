package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrNoSigningKeys = errors.New("no token signing keys configured")
)

type RealmAccess struct {
	Roles []string `json:"roles"`
}

// Claims is the subset of a realm access token we rely on.
type Claims struct {
	Email             string      `json:"email,omitempty"`
	PreferredUsername string      `json:"preferred_username,omitempty"`
	GivenName         string      `json:"given_name,omitempty"`
	FamilyName        string      `json:"family_name,omitempty"`
	RealmAccess       RealmAccess `json:"realm_access"`
	jwt.RegisteredClaims
}

// UserID is the provider account id, matched against users.external_id.
func (c *Claims) UserID() string {
	return c.Subject
}

func (c *Claims) HasRole(role string) bool {
	for _, r := range c.RealmAccess.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// KeyFetcher returns the realm signing key as PEM.
type KeyFetcher func(ctx context.Context) (string, error)

type VerifierConfig struct {
	// RealmKey loads the RS256 key on first use and again after a failure.
	RealmKey KeyFetcher
	// HS256Secret enables locally signed tokens for development and tests.
	HS256Secret string
	Issuer      string
	// DevTokenTTL applies to IssueDevToken; defaults to 1h.
	DevTokenTTL time.Duration
}

type Verifier struct {
	cfg    VerifierConfig
	secret []byte

	mu     sync.Mutex
	rsaKey *rsa.PublicKey
}

func NewVerifier(cfg VerifierConfig) *Verifier {
	if cfg.DevTokenTTL <= 0 {
		cfg.DevTokenTTL = time.Hour
	}
	return &Verifier{cfg: cfg, secret: []byte(cfg.HS256Secret)}
}

func (v *Verifier) realmKey(ctx context.Context) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rsaKey != nil {
		return v.rsaKey, nil
	}
	if v.cfg.RealmKey == nil {
		return nil, ErrNoSigningKeys
	}

	pem, err := v.cfg.RealmKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("load realm key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("parse realm key: %w", err)
	}

	v.rsaKey = key
	return key, nil
}

func (v *Verifier) VerifyAccessToken(ctx context.Context, tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "HS256"}),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodRSA:
			return v.realmKey(ctx)
		case *jwt.SigningMethodHMAC:
			if len(v.secret) == 0 {
				return nil, ErrNoSigningKeys
			}
			return v.secret, nil
		}
		return nil, errors.New("unexpected signing method")
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueDevToken signs an HS256 token shaped like a realm token.
func (v *Verifier) IssueDevToken(subject, email string, roles []string) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSigningKeys
	}

	now := time.Now().UTC()
	claims := Claims{
		Email:             email,
		PreferredUsername: email,
		RealmAccess:       RealmAccess{Roles: roles},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    v.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.cfg.DevTokenTTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
