package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = models.Identity{DisplayName: "Dr. Lan", TeamID: "3", TeamName: "ICU"}

func newTestJWTService() *services.JWTService {
	return services.NewJWTService("test-secret-key", 15*time.Minute)
}

func generateTestToken(t *testing.T, jwtSvc *services.JWTService, identity models.Identity) string {
	t.Helper()
	token, err := jwtSvc.GenerateAccessToken(identity)
	require.NoError(t, err)
	return token
}

func protectedApp(jwtSvc *services.JWTService, seen *models.Identity) http.Handler {
	app := drift.New()
	app.Use(Auth(jwtSvc))
	app.Get("/protected", func(c *drift.Context) {
		if seen != nil {
			*seen = GetIdentity(c)
		}
		_ = c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	return app
}

func TestAuth_Rejections(t *testing.T) {
	jwtSvc := newTestJWTService()
	otherSvc := services.NewJWTService("other-secret", 15*time.Minute)
	foreignToken := generateTestToken(t, otherSvc, testIdentity)

	testCases := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "missing authorization header"},
		{"no bearer", "Token some-token", "invalid authorization header format"},
		{"only bearer", "Bearer", "invalid authorization header format"},
		{"invalid token", "Bearer invalid-token", "invalid or expired token"},
		{"wrong secret", "Bearer " + foreignToken, "invalid or expired token"},
	}

	app := protectedApp(jwtSvc, nil)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			app.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.message)
		})
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	// Create service with very short expiry
	jwtSvc := services.NewJWTService("test-secret-key", 1*time.Millisecond)
	token := generateTestToken(t, jwtSvc, testIdentity)

	// Wait for token to expire
	time.Sleep(10 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	protectedApp(jwtSvc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired token")
}

func TestAuth_ValidToken(t *testing.T) {
	jwtSvc := newTestJWTService()
	token := generateTestToken(t, jwtSvc, testIdentity)

	var seen models.Identity
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	protectedApp(jwtSvc, &seen).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testIdentity, seen)
}

func TestAuth_BearerCaseInsensitive(t *testing.T) {
	jwtSvc := newTestJWTService()
	token := generateTestToken(t, jwtSvc, testIdentity)
	app := protectedApp(jwtSvc, nil)

	testCases := []string{"bearer", "BEARER", "BeArEr"}

	for _, bearer := range testCases {
		t.Run(bearer, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", bearer+" "+token)
			rec := httptest.NewRecorder()

			app.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestGetIdentity_NotSet(t *testing.T) {
	app := drift.New()

	seen := testIdentity
	app.Get("/test", func(c *drift.Context) {
		seen = GetIdentity(c)
		_ = c.JSON(http.StatusOK, nil)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.True(t, seen.IsZero())
}
