package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"teams-chat/internal/auth"
	"teams-chat/internal/mocks"
	"teams-chat/internal/observability"
)

func setupAuthRouter(authenticator auth.Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(authenticator))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt(UserIDKey), "username": c.GetString(UsernameKey)})
	})
	return r
}

func TestAuthMiddlewareSetsIdentity(t *testing.T) {
	authenticator := new(mocks.AuthenticatorMock)
	authenticator.On("Authenticate", mock.Anything, "good").Return(auth.Identity{UserID: 4, Username: "dora"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	setupAuthRouter(authenticator).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":4,"username":"dora"}`, rec.Body.String())
	authenticator.AssertExpectations(t)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	authenticator := new(mocks.AuthenticatorMock)
	authenticator.On("Authenticate", mock.Anything, "expired").Return(nil, auth.ErrInvalidToken).Once()
	router := setupAuthRouter(authenticator)

	for _, header := range []string{"", "Token abc", "Bearer", "Bearer expired"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
	authenticator.AssertExpectations(t)
}

func TestRequestIDPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, observability.RequestIDFromRequest(c.Request))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Body.String(), 36)
	assert.Equal(t, rec.Body.String(), rec.Header().Get(RequestIDHeader))
}
