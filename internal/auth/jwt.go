// Package auth provides signed tokens, password hashing and request
// authentication for the account service.
//
// TOKEN CLASSES:
// The service issues three classes of stateless JWTs, each signed with its own
// HMAC secret and lifetime:
//
//	activation  5m   carries a pending registration (username, email, password hash)
//	access      15m  carries the user ID; sent as "Authorization: Bearer <token>"
//	refresh     7d   carries the user ID; lives in an HttpOnly cookie
//
// The class name is also written to the "aud" claim and checked on parse, so a
// token of one class never verifies as another, even if two secrets were
// configured to the same value.
//
// Nothing is stored server-side. Logout drops the cookie; expiry does the rest.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "account-service"

// Kind names a token class.
type Kind string

const (
	KindActivation Kind = "activation"
	KindAccess     Kind = "access"
	KindRefresh    Kind = "refresh"
)

// Default lifetimes per token class.
const (
	ActivationTTL = 5 * time.Minute
	AccessTTL     = 15 * time.Minute
	RefreshTTL    = 7 * 24 * time.Hour
)

// ErrInvalidToken is wrapped by every verification failure: bad signature,
// expiry, malformed input or a token of the wrong class.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService signs and verifies one class of token.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	kind   Kind
	now    func() time.Time
}

// NewTokenService creates a TokenService for one token class.
// The secret should be at least 32 bytes of random data in production.
// Example: ACCESS_TOKEN_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration, kind Kind) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("auth: %s token secret must be at least 16 characters", kind)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("auth: %s token lifetime must be positive", kind)
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, kind: kind, now: time.Now}, nil
}

// Kind returns the token class this service signs.
func (s *TokenService) Kind() Kind { return s.kind }

// TTL returns the lifetime of tokens issued by Generate.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// claims is the payload of access and refresh tokens. The user ID is the
// standard "sub" claim.
type claims struct {
	jwt.RegisteredClaims
}

// pendingClaims is the payload of activation tokens.
type pendingClaims struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password"`
	jwt.RegisteredClaims
}

func (s *TokenService) registered(subject string, d time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Audience:  jwt.ClaimStrings{string(s.kind)},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		Issuer:    issuer,
	}
}

func (s *TokenService) sign(c jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", s.kind, err)
	}
	return signed, nil
}

// Generate creates and signs a token for userID with the service lifetime.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// Tests use negative durations to get already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("auth: %s token needs a subject", s.kind)
	}
	return s.sign(claims{RegisteredClaims: s.registered(userID, d)})
}

// parse verifies signature, algorithm, issuer, audience and expiry.
func (s *TokenService) parse(tokenStr string, c jwt.Claims) error {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(string(s.kind)),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %s token expired", ErrInvalidToken, s.kind)
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return fmt.Errorf("%w: %s token claims", ErrInvalidToken, s.kind)
	}
	return nil
}

// Validate parses and verifies a token string and returns the user ID stored
// in its "sub" claim.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c claims
	if err := s.parse(tokenStr, &c); err != nil {
		return "", err
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}
	return c.Subject, nil
}

// Tokens groups the three token classes used by the account service.
type Tokens struct {
	Activation *TokenService
	Access     *TokenService
	Refresh    *TokenService
}

// TokenConfig holds the secret material for NewTokens. Zero lifetimes fall
// back to the package defaults.
type TokenConfig struct {
	ActivationSecret string
	AccessSecret     string
	RefreshSecret    string

	ActivationTTL time.Duration
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// NewTokens builds the three token services.
func NewTokens(cfg TokenConfig) (*Tokens, error) {
	activation, err := NewTokenService(cfg.ActivationSecret, orDefault(cfg.ActivationTTL, ActivationTTL), KindActivation)
	if err != nil {
		return nil, err
	}
	access, err := NewTokenService(cfg.AccessSecret, orDefault(cfg.AccessTTL, AccessTTL), KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := NewTokenService(cfg.RefreshSecret, orDefault(cfg.RefreshTTL, RefreshTTL), KindRefresh)
	if err != nil {
		return nil, err
	}
	return &Tokens{Activation: activation, Access: access, Refresh: refresh}, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return d
}
