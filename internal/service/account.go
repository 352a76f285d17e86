// Package service holds the account lifecycle business logic.
//
// AccountService sits between the HTTP handlers and the store/auth utilities:
//
//	AccountHandler (HTTP) → AccountService (business rules) → UserRepository (DB)
//	                      ↘ Tokens (JWT)  ↘ PasswordService (bcrypt)  ↘ Notifier (mail)
//
// ACCOUNT STATES:
//
//	Unregistered → Register → PendingActivation → ActivateEmail → Active
//	Active → ForgotPassword → PasswordResetRequested → ResetPassword → Active
//
// A pending registration is never stored. It lives inside the signed
// activation token until ActivateEmail inserts the user. Sessions are
// client-held: a refresh token in a cookie mints short-lived access tokens.
//
// Every error returned from this package is an *apperror.AppError. Failures
// of collaborators that are not already classified become apperror.Store.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sakif/account-service/internal/apperror"
	"github.com/sakif/account-service/internal/auth"
	"github.com/sakif/account-service/internal/mail"
	"github.com/sakif/account-service/internal/model"
	"github.com/sakif/account-service/internal/repository"
	"github.com/sakif/account-service/internal/validate"
)

// Client-facing messages.
const (
	MsgFieldsRequired    = "You must fill in all of the fields."
	MsgInvalidEmail      = "Invalid email address."
	MsgEmailExists       = "This email already exists."
	MsgWeakPassword      = "Password must be at least 6 characters long one uppercase with one lowercase & one numeric character."
	MsgPasswordTooLong   = "Password must be 72 bytes or fewer."
	MsgRegistered        = "Register success! Please activate your email to start."
	MsgActivated         = "Account has been activated!"
	MsgInvalidActivation = "Activation link is invalid or has expired."
	MsgBadCredentials    = "Incorrect email or password."
	MsgLoggedIn          = "Login success!"
	MsgLoginRequired     = "Please login now!"
	MsgEmailRequired     = "Email address is required."
	MsgNoAccount         = "We could not find an account with that email."
	MsgResetSent         = "Please check your email to get reset password link."
	MsgPasswordRequired  = "Password is required."
	MsgPasswordChanged   = "Your password has been changed successfully!"
	MsgLoggedOut         = "Logged out."
	MsgUpdated           = "Update Success!"
	MsgDeleted           = "Deleted Success!"
	MsgInvalidRole       = "Role must be 0 (user) or 1 (admin)."
)

// Mail subjects.
const (
	SubjectActivation = "Verify your email address"
	SubjectReset      = "Reset your password"
)

// Config is the process configuration the service needs.
type Config struct {
	// ClientURL is the front-end base URL used to build activation and reset
	// links, e.g. "http://localhost:3000".
	ClientURL string
}

// AccountService implements the account lifecycle.
//
// DEPENDENCIES (injected via NewAccountService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.Tokens               → activation, access and refresh JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - notifier   mail.Notifier              → activation and reset links
//   - logger     *slog.Logger               → structured logging
type AccountService struct {
	users     repository.UserRepository
	tokens    *auth.Tokens
	passwords *auth.PasswordService
	notifier  mail.Notifier
	clientURL string
	logger    *slog.Logger

	// dummyHash is compared against on logins for unknown emails so both
	// failure paths cost one bcrypt comparison.
	dummyOnce sync.Once
	dummyHash string
}

// NewAccountService creates an AccountService with all required dependencies.
func NewAccountService(
	cfg Config,
	users repository.UserRepository,
	tokens *auth.Tokens,
	passwords *auth.PasswordService,
	notifier mail.Notifier,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		notifier:  notifier,
		clientURL: strings.TrimRight(cfg.ClientURL, "/"),
		logger:    logger,
	}
}

// Register validates a sign-up and mails an activation link. No user record is
// created until the link is used.
//
// Guards run in order: all fields present, email well-formed, email not taken,
// password strong enough. The "email not taken" check is advisory; the store's
// UNIQUE constraint is checked again in ActivateEmail.
func (s *AccountService) Register(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" || email == "" || password == "" {
		return apperror.ValidationFailed("", MsgFieldsRequired)
	}
	if !validate.Email(email) {
		return apperror.ValidationFailed("email", MsgInvalidEmail)
	}

	taken, err := s.emailTaken(ctx, email)
	if err != nil {
		return err
	}
	if taken {
		return apperror.ConflictMessage("email", MsgEmailExists)
	}

	if !validate.Password(password) {
		return apperror.ValidationFailed("password", MsgWeakPassword)
	}

	hash, err := s.hash(password)
	if err != nil {
		return err
	}

	token, err := s.tokens.Activation.GeneratePending(model.PendingRegistration{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return apperror.Store(err)
	}

	if err := s.send(ctx, email, s.link("activate", token), SubjectActivation); err != nil {
		return err
	}

	s.logger.Info("registration pending activation", slog.String("email", email))
	return nil
}

// ActivateEmail verifies an activation token and creates the user it carries.
//
// Activating the same token twice fails with a conflict the second time,
// because the email is then taken.
func (s *AccountService) ActivateEmail(ctx context.Context, token string) (*model.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperror.InvalidToken(MsgInvalidActivation, nil)
	}

	pending, err := s.tokens.Activation.ValidatePending(token)
	if err != nil {
		return nil, apperror.InvalidToken(MsgInvalidActivation, err)
	}

	taken, err := s.emailTaken(ctx, pending.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperror.ConflictMessage("email", MsgEmailExists)
	}

	user := &model.User{
		Username:     pending.Username,
		Email:        pending.Email,
		PasswordHash: pending.PasswordHash,
		Role:         model.RoleUser,
		Avatar:       model.DefaultAvatar,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ConflictMessage("email", MsgEmailExists)
		}
		return nil, apperror.Classify(err)
	}

	s.logger.Info("account activated", slog.String("userID", user.ID))
	return user, nil
}

// Login checks credentials and returns a refresh token. Access tokens are not
// issued here; the caller exchanges the refresh token via RefreshAccessToken.
//
// An unknown email and a wrong password fail with the same AuthError message.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)

	if email == "" || password == "" {
		return "", apperror.ValidationFailed("", MsgFieldsRequired)
	}
	if !validate.Email(email) {
		return "", apperror.ValidationFailed("email", MsgInvalidEmail)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.burnCompare(password)
			return "", apperror.Unauthorized(MsgBadCredentials)
		}
		return "", apperror.Classify(err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return "", apperror.Unauthorized(MsgBadCredentials)
		}
		return "", apperror.Store(err)
	}

	refresh, err := s.tokens.Refresh.Generate(user.ID)
	if err != nil {
		return "", apperror.Store(err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return refresh, nil
}

// RefreshAccessToken mints a new access token from a refresh token. A refresh
// token may be used any number of times until it expires.
func (s *AccountService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperror.Unauthorized(MsgLoginRequired)
	}

	userID, err := s.tokens.Refresh.Validate(refreshToken)
	if err != nil {
		s.logger.DebugContext(ctx, "refresh token rejected", slog.String("error", err.Error()))
		return "", apperror.Unauthorized(MsgLoginRequired)
	}

	access, err := s.tokens.Access.Generate(userID)
	if err != nil {
		return "", apperror.Store(err)
	}
	return access, nil
}

// ForgotPassword mails a reset link. The link carries an access-class token
// for the account, which ResetPassword accepts as a bearer credential.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)

	if email == "" {
		return apperror.ValidationFailed("email", MsgEmailRequired)
	}
	if !validate.Email(email) {
		return apperror.ValidationFailed("email", MsgInvalidEmail)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.Unauthorized(MsgNoAccount)
		}
		return apperror.Classify(err)
	}

	token, err := s.tokens.Access.Generate(user.ID)
	if err != nil {
		return apperror.Store(err)
	}

	if err := s.send(ctx, user.Email, s.link("password_reset", token), SubjectReset); err != nil {
		return err
	}

	s.logger.Info("password reset requested", slog.String("userID", user.ID))
	return nil
}

// ResetPassword overwrites the password of an authenticated user. Only
// presence is checked here, not strength.
func (s *AccountService) ResetPassword(ctx context.Context, userID, password string) error {
	if password == "" {
		return apperror.ValidationFailed("password", MsgPasswordRequired)
	}

	hash, err := s.hash(password)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return apperror.Classify(err)
	}

	s.logger.Info("password reset", slog.String("userID", userID))
	return nil
}

// GetUser returns one user. The JSON form of model.User omits the hash.
func (s *AccountService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Classify(err)
	}
	return user, nil
}

// ListUsers returns users oldest first.
func (s *AccountService) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, apperror.ValidationFailed("", "limit and offset must not be negative")
	}
	users, err := s.users.List(ctx, opts)
	if err != nil {
		return nil, apperror.Classify(err)
	}
	return users, nil
}

// ProfileUpdate carries the editable profile fields. A nil field is left
// unchanged.
type ProfileUpdate struct {
	Username *string `json:"username"`
	Avatar   *string `json:"avatar"`
}

// UpdateProfile changes the username and avatar of userID. Role and email
// cannot be changed here.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return apperror.Classify(err)
	}

	username, avatar := user.Username, user.Avatar
	if update.Username != nil {
		username = *update.Username
	}
	if update.Avatar != nil {
		avatar = *update.Avatar
	}

	if err := s.users.UpdateProfile(ctx, userID, username, avatar); err != nil {
		return apperror.Classify(err)
	}
	return nil
}

// UpdateRole sets the role of any user. Callers must gate this with
// auth.RequireRole.
func (s *AccountService) UpdateRole(ctx context.Context, targetID string, role model.Role) error {
	if !role.Valid() {
		return apperror.ValidationFailed("role", MsgInvalidRole)
	}
	if err := s.users.UpdateRole(ctx, targetID, role); err != nil {
		return apperror.Classify(err)
	}

	s.logger.Info("role updated", slog.String("userID", targetID), slog.String("role", role.String()))
	return nil
}

// DeleteUser removes a user permanently. Callers must gate this with
// auth.RequireRole.
func (s *AccountService) DeleteUser(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return apperror.Classify(err)
	}

	s.logger.Info("user deleted", slog.String("userID", id))
	return nil
}

// HasRole reports whether userID exists and holds role. It satisfies
// auth.RoleChecker.
func (s *AccountService) HasRole(ctx context.Context, userID string, role model.Role) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, apperror.Classify(err)
	}
	return user.Role == role, nil
}

// LoginWithGitHub signs in the account whose email matches the GitHub
// identity, creating an active account on first use, and returns a refresh
// token like Login does.
//
// Accounts created this way get a random password nobody knows; the owner
// can set one through ForgotPassword.
func (s *AccountService) LoginWithGitHub(ctx context.Context, identity *auth.GitHubIdentity) (string, error) {
	if identity == nil || identity.Email == "" {
		return "", apperror.Unauthorized("GitHub account has no verified email.")
	}

	user, err := s.users.GetByEmail(ctx, identity.Email)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.createFromGitHub(ctx, identity)
		if err != nil {
			return "", err
		}
	default:
		return "", apperror.Classify(err)
	}

	refresh, err := s.tokens.Refresh.Generate(user.ID)
	if err != nil {
		return "", apperror.Store(err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", identity.Login),
	)
	return refresh, nil
}

func (s *AccountService) createFromGitHub(ctx context.Context, identity *auth.GitHubIdentity) (*model.User, error) {
	hash, err := s.hash(rand.Text())
	if err != nil {
		return nil, err
	}

	username := identity.Login
	if username == "" {
		username = strings.SplitN(identity.Email, "@", 2)[0]
	}

	user := &model.User{
		Username:     username,
		Email:        identity.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Avatar:       identity.AvatarURL,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent sign-in for the same email.
		if errors.Is(err, apperror.ErrConflict) {
			existing, getErr := s.users.GetByEmail(ctx, identity.Email)
			if getErr != nil {
				return nil, apperror.Classify(getErr)
			}
			return existing, nil
		}
		return nil, apperror.Classify(err)
	}
	return user, nil
}

func (s *AccountService) emailTaken(ctx context.Context, email string) (bool, error) {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperror.ErrNotFound):
		return false, nil
	default:
		return false, apperror.Classify(err)
	}
}

func (s *AccountService) hash(password string) (string, error) {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", apperror.ValidationFailed("password", MsgPasswordTooLong)
		}
		return "", apperror.Store(err)
	}
	return hash, nil
}

func (s *AccountService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.passwords.Hash("not-a-real-password")
	})
	_ = s.passwords.Verify(s.dummyHash, password)
}

func (s *AccountService) send(ctx context.Context, to, link, subject string) error {
	if err := s.notifier.Send(ctx, to, link, subject); err != nil {
		s.logger.Error("mail delivery failed",
			slog.String("to", to),
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
		return apperror.Delivery(fmt.Errorf("sending %q to %s: %w", subject, to, err))
	}
	return nil
}

func (s *AccountService) link(kind, token string) string {
	return s.clientURL + "/user/" + kind + "/" + token
}
