package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anhducle99/bluecode/internal/middleware"
	"github.com/anhducle99/bluecode/internal/sse"
	"github.com/anhducle99/bluecode/internal/testutil"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestActivityHandler_Stream_NotAuthenticated(t *testing.T) {
	handler := NewActivityHandler(new(testutil.MockSSEHub))

	app := drift.New()
	app.Use(middleware.Auth(testutil.TestJWTService()))
	app.Get("/activity", handler.Stream)

	rec := testutil.NewHTTPTestClient(t, app).GET("/activity")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActivityHandler_Stream_RegistersCallerParty(t *testing.T) {
	hubMock := new(testutil.MockSSEHub)
	handler := NewActivityHandler(hubMock)

	hubMock.On("Register", mock.MatchedBy(func(c *sse.Client) bool { return c.Party == "ICU" })).Return()
	hubMock.On("Unregister", mock.AnythingOfType("*sse.Client")).Return()

	app := drift.New()
	app.Use(middleware.Auth(testutil.TestJWTService()))
	app.Get("/activity", handler.Stream)

	// The stream ends once the request context is done
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/activity", nil).WithContext(ctx)
	req.Header.Set("Authorization", testutil.Bearer(t, icuDoc))
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "connected")
	hubMock.AssertExpectations(t)
}
