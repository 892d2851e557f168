package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"teams-chat/internal/mocks"
	"teams-chat/internal/models"
	"teams-chat/internal/repositories"
)

type onlineSet map[int]bool

func (s onlineSet) Online(userID int) bool { return s[userID] }

func setupPresenceRouter(handler *PresenceHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/presence/:user_id", handler.GetPresence)
	return r
}

func TestGetPresence(t *testing.T) {
	repo := new(mocks.PresenceRepositoryMock)
	lastSeen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.On("GetProfile", mock.Anything, 7).Return(models.UserProfile{UserID: 7, IsOnline: true, LastSeen: lastSeen}, nil).Once()
	router := setupPresenceRouter(NewPresenceHandler(repo, onlineSet{7: true}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/presence/7", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, float64(7), resp["user_id"])
	assert.Equal(t, true, resp["is_online"])
	assert.Equal(t, true, resp["connected_here"])
	assert.Equal(t, "2024-05-01T12:00:00Z", resp["last_seen"])
	repo.AssertExpectations(t)
}

func TestGetPresenceWithoutTracker(t *testing.T) {
	repo := new(mocks.PresenceRepositoryMock)
	repo.On("GetProfile", mock.Anything, 3).Return(models.UserProfile{UserID: 3}, nil).Once()
	router := setupPresenceRouter(NewPresenceHandler(repo, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/presence/3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, false, resp["connected_here"])
}

func TestGetPresenceErrors(t *testing.T) {
	repo := new(mocks.PresenceRepositoryMock)
	repo.On("GetProfile", mock.Anything, 9).Return(nil, repositories.ErrProfileNotFound).Once()
	repo.On("GetProfile", mock.Anything, 10).Return(nil, assert.AnError).Once()
	router := setupPresenceRouter(NewPresenceHandler(repo, onlineSet{}))

	cases := map[string]int{
		"/presence/abc": http.StatusBadRequest,
		"/presence/0":   http.StatusBadRequest,
		"/presence/9":   http.StatusNotFound,
		"/presence/10":  http.StatusInternalServerError,
	}
	for path, status := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, status, rec.Code, path)
	}
	repo.AssertExpectations(t)
}
