package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/services"
	"github.com/stretchr/testify/require"
)

// TestJWTService signs tokens with a fixed test secret.
func TestJWTService() *services.JWTService {
	return services.NewJWTService("test-secret-key-for-testing-only", 15*time.Minute)
}

// GenerateTestToken issues an access token for identity.
func GenerateTestToken(t *testing.T, identity models.Identity) string {
	t.Helper()
	token, err := TestJWTService().GenerateAccessToken(identity)
	require.NoError(t, err, "issue test token")
	return token
}

// Bearer returns the Authorization header value for identity.
func Bearer(t *testing.T, identity models.Identity) string {
	t.Helper()
	return "Bearer " + GenerateTestToken(t, identity)
}

// HTTPTestClient drives a handler in-process, optionally as a signed-in
// identity.
type HTTPTestClient struct {
	t       *testing.T
	handler http.Handler
	auth    string
}

func NewHTTPTestClient(t *testing.T, handler http.Handler) *HTTPTestClient {
	return &HTTPTestClient{t: t, handler: handler}
}

// As returns a client that sends every request with a token for identity.
func (c *HTTPTestClient) As(identity models.Identity) *HTTPTestClient {
	c.t.Helper()
	return &HTTPTestClient{t: c.t, handler: c.handler, auth: Bearer(c.t, identity)}
}

func (c *HTTPTestClient) Do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err, "encode request body")
		payload = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func (c *HTTPTestClient) GET(path string) *httptest.ResponseRecorder {
	return c.Do(http.MethodGet, path, nil)
}

func (c *HTTPTestClient) POST(path string, body any) *httptest.ResponseRecorder {
	return c.Do(http.MethodPost, path, body)
}

// DecodeJSON decodes the recorded body into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v), "decode response body")
}

// RequireStatus fails the test unless the recorded status matches.
func RequireStatus(t *testing.T, rec *httptest.ResponseRecorder, expected int) {
	t.Helper()
	require.Equal(t, expected, rec.Code, "body: %s", rec.Body.String())
}
