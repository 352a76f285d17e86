package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/account-service/internal/auth"
	"github.com/sakif/account-service/internal/config"
	"github.com/sakif/account-service/internal/handler"
	"github.com/sakif/account-service/internal/model"
	sqliteRepo "github.com/sakif/account-service/internal/repository/sqlite"
	"github.com/sakif/account-service/internal/service"
)

// =========================================================================
// HELPERS
// =========================================================================

type captureNotifier struct {
	links []string
}

func (n *captureNotifier) Send(ctx context.Context, to, link, subject string) error {
	n.links = append(n.links, link)
	return nil
}

func (n *captureNotifier) lastToken(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, n.links, "no link was sent")
	link := n.links[len(n.links)-1]
	return link[strings.LastIndex(link, "/")+1:]
}

type testApp struct {
	router http.Handler
	store  *sqliteRepo.DB
	mailer *captureNotifier
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	store, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tokens, err := auth.NewTokens(auth.TokenConfig{
		ActivationSecret: "activation-secret-for-tests",
		AccessSecret:     "access-secret-for-tests!",
		RefreshSecret:    "refresh-secret-for-tests",
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mailer := &captureNotifier{}
	accounts := service.NewAccountService(
		service.Config{ClientURL: "http://localhost:3000"},
		store, tokens, auth.NewPasswordServiceForTest(4), mailer, logger,
	)

	router := NewRouter(Deps{
		Accounts:  accounts,
		Tokens:    tokens,
		Store:     store,
		Cookies:   handler.CookieConfig{MaxAge: tokens.Refresh.TTL()},
		ClientURL: "http://localhost:3000",
		Logger:    logger,
	})
	return &testApp{router: router, store: store, mailer: mailer}
}

type call struct {
	method, path, body string
	bearer             string
	cookie             *http.Cookie
}

func (a *testApp) do(c call) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if c.body != "" {
		body = bytes.NewBufferString(c.body)
	} else {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == handler.RefreshCookieName {
			return c
		}
	}
	t.Fatal("response has no refresh cookie")
	return nil
}

func messageOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	msg, _ := body["message"].(string)
	return msg
}

// signUp registers, activates and logs in, returning the refresh cookie and
// a fresh access token.
func (a *testApp) signUp(t *testing.T, name, email, password string) (*http.Cookie, string) {
	t.Helper()

	rr := a.do(call{method: http.MethodPost, path: "/user/register",
		body: `{"username":"` + name + `","email":"` + email + `","password":"` + password + `"}`})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = a.do(call{method: http.MethodPost, path: "/user/activation",
		body: `{"activation_token":"` + a.mailer.lastToken(t) + `"}`})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	return a.login(t, email, password)
}

func (a *testApp) login(t *testing.T, email, password string) (*http.Cookie, string) {
	t.Helper()

	rr := a.do(call{method: http.MethodPost, path: "/user/login",
		body: `{"email":"` + email + `","password":"` + password + `"}`})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cookie := refreshCookie(t, rr)

	rr = a.do(call{method: http.MethodPost, path: "/user/refresh_token", cookie: cookie})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var tok handler.AccessTokenResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&tok))
	require.NotEmpty(t, tok.AccessToken)
	return cookie, tok.AccessToken
}

// =========================================================================
// END-TO-END TESTS
// =========================================================================

func TestAccountFlow(t *testing.T) {
	app := newTestApp(t)

	_, access := app.signUp(t, "alice", "alice@x.com", "Abcdef1")

	rr := app.do(call{method: http.MethodGet, path: "/user/infor", bearer: access})
	require.Equal(t, http.StatusOK, rr.Code)
	var me model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&me))
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, model.RoleUser, me.Role)
	assert.Equal(t, model.DefaultAvatar, me.Avatar)

	rr = app.do(call{method: http.MethodPatch, path: "/user/update", bearer: access, body: `{"username":"alice2"}`})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, service.MsgUpdated, messageOf(t, rr))

	rr = app.do(call{method: http.MethodGet, path: "/user/logout"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, service.MsgLoggedOut, messageOf(t, rr))
}

func TestDuplicateActivationIsConflict(t *testing.T) {
	app := newTestApp(t)

	rr := app.do(call{method: http.MethodPost, path: "/user/register",
		body: `{"username":"bob","email":"bob@x.com","password":"Abcdef1"}`})
	require.Equal(t, http.StatusOK, rr.Code)
	body := `{"activation_token":"` + app.mailer.lastToken(t) + `"}`

	rr = app.do(call{method: http.MethodPost, path: "/user/activation", body: body})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = app.do(call{method: http.MethodPost, path: "/user/activation", body: body})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, service.MsgEmailExists, messageOf(t, rr))
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	app := newTestApp(t)
	app.signUp(t, "carol", "carol@x.com", "Abcdef1")

	wrong := app.do(call{method: http.MethodPost, path: "/user/login", body: `{"email":"carol@x.com","password":"Nope123"}`})
	unknown := app.do(call{method: http.MethodPost, path: "/user/login", body: `{"email":"ghost@x.com","password":"Abcdef1"}`})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	app := newTestApp(t)
	cookie, _ := app.signUp(t, "dave", "dave@x.com", "Abcdef1")

	rr := app.do(call{method: http.MethodGet, path: "/user/infor"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// A refresh token is not an access token.
	rr = app.do(call{method: http.MethodGet, path: "/user/infor", bearer: cookie.Value})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = app.do(call{method: http.MethodPost, path: "/user/refresh_token"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, service.MsgLoginRequired, messageOf(t, rr))
}

func TestForgotAndResetPassword(t *testing.T) {
	app := newTestApp(t)
	app.signUp(t, "erin", "erin@x.com", "Abcdef1")

	rr := app.do(call{method: http.MethodPost, path: "/user/forgot", body: `{"email":"erin@x.com"}`})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, service.MsgResetSent, messageOf(t, rr))

	rr = app.do(call{method: http.MethodPost, path: "/user/reset",
		bearer: app.mailer.lastToken(t), body: `{"password":"Changed9"}`})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, service.MsgPasswordChanged, messageOf(t, rr))

	rr = app.do(call{method: http.MethodPost, path: "/user/login", body: `{"email":"erin@x.com","password":"Abcdef1"}`})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	app.login(t, "erin@x.com", "Changed9")
}

func TestAdminRoutes(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	_, adminAccess := app.signUp(t, "root", "root@x.com", "Abcdef1")
	_, userAccess := app.signUp(t, "frank", "frank@x.com", "Abcdef1")

	rr := app.do(call{method: http.MethodGet, path: "/user/all_infor", bearer: adminAccess})
	assert.Equal(t, http.StatusForbidden, rr.Code, "not an admin yet")

	root, err := app.store.GetByEmail(ctx, "root@x.com")
	require.NoError(t, err)
	require.NoError(t, app.store.UpdateRole(ctx, root.ID, model.RoleAdmin))

	rr = app.do(call{method: http.MethodGet, path: "/user/all_infor", bearer: adminAccess})
	require.Equal(t, http.StatusOK, rr.Code)
	var users []model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&users))
	assert.Len(t, users, 2)
	assert.NotContains(t, rr.Body.String(), "$2a$")

	frank, err := app.store.GetByEmail(ctx, "frank@x.com")
	require.NoError(t, err)

	rr = app.do(call{method: http.MethodPatch, path: "/user/update_role/" + root.ID, bearer: userAccess, body: `{"role":0}`})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = app.do(call{method: http.MethodPatch, path: "/user/update_role/" + frank.ID, bearer: adminAccess, body: `{"role":5}`})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = app.do(call{method: http.MethodPatch, path: "/user/update_role/" + frank.ID, bearer: adminAccess, body: `{"role":1}`})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = app.do(call{method: http.MethodDelete, path: "/user/delete/" + frank.ID, bearer: adminAccess})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, service.MsgDeleted, messageOf(t, rr))

	rr = app.do(call{method: http.MethodPost, path: "/user/login", body: `{"email":"frank@x.com","password":"Abcdef1"}`})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = app.do(call{method: http.MethodDelete, path: "/user/delete/" + frank.ID, bearer: adminAccess})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNew_SQLiteInMemory(t *testing.T) {
	cfg := &config.Config{
		Port:             8080,
		DBDriver:         "sqlite",
		DBPath:           ":memory:",
		ActivationSecret: "activation-secret-0123",
		AccessSecret:     "access-secret-0123456",
		RefreshSecret:    "refresh-secret-012345",
		ClientURL:        "http://localhost:3000",
		BcryptCost:       4,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	srv, err := New(context.Background(), cfg, logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { srv.store.Close() })

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	// GitHub routes are not mounted without credentials.
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), &config.Config{DBDriver: "mysql"})
	assert.Error(t, err)
}
