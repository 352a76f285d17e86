package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/account-service/internal/auth"
)

const oauthStateCookie = "oauth_state"

// GitHubOAuth is the provider side of the GitHub sign-in flow.
// *auth.GitHubProvider implements it.
type GitHubOAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubIdentity, error)
}

// GitHubAccounts signs a GitHub identity in and returns a refresh token.
type GitHubAccounts interface {
	LoginWithGitHub(ctx context.Context, identity *auth.GitHubIdentity) (string, error)
}

// GitHubHandler manages the GitHub OAuth sign-in flow.
//
//   - HandleLogin    → redirect the browser to GitHub's authorization page
//   - HandleCallback → exchange the code, sign the account in, set the refresh cookie
//
// A successful callback leaves the browser in the same state as a password
// login: a refreshToken cookie and no access token yet.
type GitHubHandler struct {
	github    GitHubOAuth
	accounts  GitHubAccounts
	cookies   CookieConfig
	clientURL string
	logger    *slog.Logger
}

func NewGitHubHandler(github GitHubOAuth, accounts GitHubAccounts, cookies CookieConfig, clientURL string, logger *slog.Logger) *GitHubHandler {
	if cookies.MaxAge <= 0 {
		cookies.MaxAge = auth.RefreshTTL
	}
	return &GitHubHandler{
		github:    github,
		accounts:  accounts,
		cookies:   cookies,
		clientURL: clientURL,
		logger:    logger,
	}
}

// HandleLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived HttpOnly cookie and must come
// back unchanged on the callback.
func (h *GitHubHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub identity
//  3. Find or create the account by email, issue a refresh token
//  4. Set the refresh cookie and redirect to the client
func (h *GitHubHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_state", Message: "Invalid OAuth state."})
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, h.clientURL+"/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "Missing OAuth code."})
		return
	}

	identity, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "oauth_error", Message: "GitHub authentication failed."})
		return
	}

	refresh, err := h.accounts.LoginWithGitHub(r.Context(), identity)
	if err != nil {
		h.logger.Error("github callback: sign-in failed",
			slog.Int64("githubID", identity.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	setRefreshCookie(w, refresh, h.cookies)
	http.Redirect(w, r, h.clientURL+"/", http.StatusSeeOther)
}
