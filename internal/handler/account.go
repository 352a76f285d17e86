package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/account-service/internal/apperror"
	"github.com/sakif/account-service/internal/auth"
	"github.com/sakif/account-service/internal/model"
	"github.com/sakif/account-service/internal/repository"
	"github.com/sakif/account-service/internal/service"
)

// RefreshCookieName and RefreshCookiePath scope the refresh token cookie to
// the one endpoint that reads it.
const (
	RefreshCookieName = "refreshToken"
	RefreshCookiePath = "/user/refresh_token"
)

// Accounts is the account lifecycle as seen by the HTTP layer.
// *service.AccountService implements it.
type Accounts interface {
	Register(ctx context.Context, username, email, password string) error
	ActivateEmail(ctx context.Context, token string) (*model.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, userID, password string) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error)
	UpdateProfile(ctx context.Context, userID string, update service.ProfileUpdate) error
	UpdateRole(ctx context.Context, targetID string, role model.Role) error
	DeleteUser(ctx context.Context, id string) error
}

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	Secure bool          // send only over HTTPS
	MaxAge time.Duration // cookie lifetime; matches the refresh token TTL
}

// AccountHandler serves the /user routes.
//
// HANDLER RESPONSIBILITIES:
//   - decode request bodies and URL parameters
//   - call the service
//   - set or clear the refresh cookie
//   - map errors to status codes via writeError
//
// Business rules live in the service; nothing here touches the store.
type AccountHandler struct {
	accounts Accounts
	cookies  CookieConfig
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts Accounts, cookies CookieConfig, logger *slog.Logger) *AccountHandler {
	if cookies.MaxAge <= 0 {
		cookies.MaxAge = auth.RefreshTTL
	}
	return &AccountHandler{accounts: accounts, cookies: cookies, logger: logger}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister starts a registration and mails the activation link.
//
// HTTP: POST /user/register
// Body: {"username": "...", "email": "...", "password": "..."}
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.accounts.Register(r.Context(), req.Username, req.Email, req.Password); err != nil {
		h.logFailure(r, "register", err)
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, service.MsgRegistered)
}

type activationRequest struct {
	ActivationToken string `json:"activation_token"`
}

// HandleActivate creates the account carried by an activation token.
//
// HTTP: POST /user/activation
// Body: {"activation_token": "..."}
func (h *AccountHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	var req activationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.accounts.ActivateEmail(r.Context(), req.ActivationToken); err != nil {
		h.logFailure(r, "activate", err)
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, service.MsgActivated)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin checks credentials and sets the refresh cookie. No access token
// is returned; the client calls /user/refresh_token next.
//
// HTTP: POST /user/login
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	refresh, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logFailure(r, "login", err)
		writeError(w, err)
		return
	}

	h.setRefreshCookie(w, refresh)
	writeMessage(w, http.StatusOK, service.MsgLoggedIn)
}

// AccessTokenResponse is the body of a successful refresh.
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// HandleRefreshToken exchanges the refresh cookie for a new access token.
//
// HTTP: POST /user/refresh_token
// Cookie: refreshToken
func (h *AccountHandler) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var refresh string
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		refresh = c.Value
	}

	access, err := h.accounts.RefreshAccessToken(r.Context(), refresh)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AccessTokenResponse{AccessToken: access})
}

type forgotRequest struct {
	Email string `json:"email"`
}

// HandleForgot mails a password reset link.
//
// HTTP: POST /user/forgot
func (h *AccountHandler) HandleForgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		h.logFailure(r, "forgot password", err)
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, service.MsgResetSent)
}

type resetRequest struct {
	Password string `json:"password"`
}

// HandleReset sets a new password for the caller. The bearer token is the one
// from the reset link.
//
// HTTP: POST /user/reset
// Auth: Required
func (h *AccountHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), userID, req.Password); err != nil {
		h.logFailure(r, "reset password", err)
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, service.MsgPasswordChanged)
}

// HandleInfo returns the caller's profile without the password hash.
//
// HTTP: GET /user/infor
// Auth: Required
func (h *AccountHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleListUsers returns every user, oldest first.
//
// HTTP: GET /user/all_infor?limit=50&offset=0
// Auth: Required, admin
func (h *AccountHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	users, err := h.accounts.ListUsers(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// HandleLogout clears the refresh cookie. Tokens already issued stay valid
// until they expire.
//
// HTTP: GET /user/logout
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     RefreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	writeMessage(w, http.StatusOK, service.MsgLoggedOut)
}

// HandleUpdate changes the caller's username and/or avatar. Omitted fields
// are left unchanged.
//
// HTTP: PATCH /user/update
// Auth: Required
func (h *AccountHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req service.ProfileUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.accounts.UpdateProfile(r.Context(), userID, req); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, service.MsgUpdated)
}

type roleRequest struct {
	Role *int `json:"role"`
}

// HandleUpdateRole sets the role of the user in the path.
//
// HTTP: PATCH /user/update_role/{id}
// Auth: Required, admin
func (h *AccountHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")

	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Role == nil {
		writeError(w, apperror.ValidationFailed("role", service.MsgInvalidRole))
		return
	}

	if err := h.accounts.UpdateRole(r.Context(), targetID, model.Role(*req.Role)); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, service.MsgUpdated)
}

// HandleDelete removes the user in the path.
//
// HTTP: DELETE /user/delete/{id}
// Auth: Required, admin
func (h *AccountHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, service.MsgDeleted)
}

func (h *AccountHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	setRefreshCookie(w, token, h.cookies)
}

func setRefreshCookie(w http.ResponseWriter, token string, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     RefreshCookiePath,
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireUser reads the user ID set by auth.RequireAuth.
func (h *AccountHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// Only reachable if the route was registered without RequireAuth.
		writeError(w, apperror.Unauthorized("Invalid Authentication."))
		return "", false
	}
	return userID, true
}

func (h *AccountHandler) logFailure(r *http.Request, op string, err error) {
	status, _ := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), op+" failed", slog.String("error", err.Error()))
		return
	}
	h.logger.DebugContext(r.Context(), op+" rejected", slog.String("error", err.Error()))
}

func listOptions(r *http.Request) (repository.ListOptions, error) {
	var opts repository.ListOptions
	q := r.URL.Query()

	params := []struct {
		name string
		dst  *int
	}{
		{"limit", &opts.Limit},
		{"offset", &opts.Offset},
	}
	for _, p := range params {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, apperror.ValidationFailed(p.name, p.name+" must be a non-negative integer")
		}
		*p.dst = n
	}
	return opts, nil
}
