package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/account-service/internal/model"
)

type stubRoles struct {
	roles map[string]model.Role
	err   error
}

func (s stubRoles) HasRole(_ context.Context, userID string, role model.Role) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	r, ok := s.roles[userID]
	return ok && r == role, nil
}

// echoUser writes the user ID the middleware put in the context.
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, _ := UserIDFromContext(r.Context())
	_, _ = w.Write([]byte(id))
})

func TestRequireAuth(t *testing.T) {
	access := newTestTokenService(t)
	refresh, _ := NewTokenService("refresh-secret-0123456789abc", RefreshTTL, KindRefresh)

	valid, _ := access.Generate("user-1")
	wrongKind, _ := refresh.Generate("user-1")

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"bearer token", "Bearer " + valid, http.StatusOK, "user-1"},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, "user-1"},
		{"bare token", valid, http.StatusOK, "user-1"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", http.StatusUnauthorized, ""},
		{"refresh token as bearer", "Bearer " + wrongKind, http.StatusUnauthorized, ""},
	}

	h := RequireAuth(access)(echoUser)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/user/infor", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, rr.Body.String())
			} else {
				assert.Contains(t, rr.Body.String(), `"unauthorized"`)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	roles := stubRoles{roles: map[string]model.Role{
		"admin-1": model.RoleAdmin,
		"user-1":  model.RoleUser,
	}}

	tests := []struct {
		name       string
		checker    RoleChecker
		userID     string
		wantStatus int
		wantKind   string
	}{
		{"admin passes", roles, "admin-1", http.StatusOK, ""},
		{"user is forbidden", roles, "user-1", http.StatusForbidden, "forbidden"},
		{"unknown user is forbidden", roles, "ghost", http.StatusForbidden, "forbidden"},
		{"anonymous is unauthorized", roles, "", http.StatusUnauthorized, "unauthorized"},
		{"lookup failure", stubRoles{err: errors.New("db down")}, "admin-1", http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireRole(tt.checker, model.RoleAdmin)(echoUser)
			req := httptest.NewRequest(http.MethodGet, "/user/all_infor", nil)
			if tt.userID != "" {
				req = req.WithContext(WithUserID(req.Context(), tt.userID))
			}
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantKind != "" {
				var body map[string]string
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
				assert.Equal(t, tt.wantKind, body["error"])
			}
		})
	}
}

func TestUserIDFromContext_Empty(t *testing.T) {
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Error("UserIDFromContext() on a bare context should report false")
	}
	if _, ok := UserIDFromContext(WithUserID(context.Background(), "")); ok {
		t.Error("UserIDFromContext() should treat an empty ID as anonymous")
	}
}
