package auth

import (
	"fmt"

	"github.com/sakif/account-service/internal/model"
)

// GeneratePending signs an activation token that carries p. The email doubles
// as the token subject.
func (s *TokenService) GeneratePending(p model.PendingRegistration) (string, error) {
	if p.Email == "" {
		return "", fmt.Errorf("auth: pending registration needs an email")
	}
	return s.sign(pendingClaims{
		Username:         p.Username,
		Email:            p.Email,
		PasswordHash:     p.PasswordHash,
		RegisteredClaims: s.registered(p.Email, s.ttl),
	})
}

// ValidatePending verifies an activation token and returns the registration
// embedded in it.
func (s *TokenService) ValidatePending(tokenStr string) (*model.PendingRegistration, error) {
	var c pendingClaims
	if err := s.parse(tokenStr, &c); err != nil {
		return nil, err
	}
	if c.Email == "" || c.PasswordHash == "" {
		return nil, fmt.Errorf("%w: activation token is missing registration fields", ErrInvalidToken)
	}
	return &model.PendingRegistration{
		Username:     c.Username,
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
	}, nil
}
