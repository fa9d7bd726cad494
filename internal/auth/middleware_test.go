package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/castellanhq/castellan/internal/auth"
	"github.com/castellanhq/castellan/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedHandler(t *testing.T, expectUsername string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, expectUsername, claims.Username)
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_ValidToken(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, 15*time.Minute)
	token, err := tm.GenerateAccessToken("jdoe", []string{"Domain Users"})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	auth.Middleware(tm)(protectedHandler(t, "jdoe")).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddleware_MissingHeader(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, 15*time.Minute)

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()

	auth.Middleware(tm)(protectedHandler(t, "")).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware_InvalidToken(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, 15*time.Minute)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()

	auth.Middleware(tm)(protectedHandler(t, "")).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireGroup(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		groups   []string
		expected int
	}{
		{name: "member", groups: []string{"Domain Users", "CastellanAdmins"}, expected: http.StatusOK},
		{name: "case insensitive match", groups: []string{"castellanadmins"}, expected: http.StatusOK},
		{name: "not a member", groups: []string{"Domain Users"}, expected: http.StatusForbidden},
		{name: "no groups", groups: nil, expected: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/admin/unlock", nil)
			req = req.WithContext(auth.ContextWithClaims(req.Context(), &models.TokenClaims{
				Username: "jdoe",
				Groups:   tt.groups,
			}))
			w := httptest.NewRecorder()

			auth.RequireGroup("CastellanAdmins")(ok).ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestRequireGroup_NoClaims(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/admin/unlock", nil)
	w := httptest.NewRecorder()

	auth.RequireGroup("CastellanAdmins")(ok).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
