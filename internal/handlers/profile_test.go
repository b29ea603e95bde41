package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roomchat-service/internal/mocks"
	"roomchat-service/internal/models"
	"roomchat-service/internal/profile"
	"roomchat-service/internal/session"
	"roomchat-service/internal/upload"
)

type profileFixture struct {
	users  *mocks.UserRepositoryMock
	router *gin.Engine
}

func newProfileFixture(t *testing.T, signedIn bool, store upload.BlobStore) *profileFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := new(mocks.UserRepositoryMock)
	sessions := session.NewManager(session.NewTokens("test-secret"), users, zap.NewNop().Sugar())
	editor := profile.NewEditor(users, upload.NewPipeline(store, zap.NewNop().Sugar()))
	handler := NewProfileHandler(editor, sessions, nil)

	r := gin.New()
	if signedIn {
		r.Use(func(c *gin.Context) {
			c.Set("userID", 7)
			ctx := session.WithPrincipal(c.Request.Context(), models.Principal{ID: 7, DisplayName: "alice"})
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
	r.GET("/profile", handler.GetProfile)
	r.PUT("/profile/name", handler.UpdateName)
	r.PUT("/profile/avatar", handler.UpdateAvatar)

	return &profileFixture{users: users, router: r}
}

func TestGetProfileSuccess(t *testing.T) {
	f := newProfileFixture(t, true, &testBlobStore{})

	f.users.On("GetUser", mock.Anything, 7).Return(models.User{
		ID: 7, Email: "a@b.c", DisplayName: "alice", AvatarURL: "https://cdn.test/a.png",
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Profile models.Principal `json:"profile"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.Profile.DisplayName)
	f.users.AssertExpectations(t)
}

func TestGetProfileUnauthenticated(t *testing.T) {
	f := newProfileFixture(t, false, &testBlobStore{})

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateNameSuccess(t *testing.T) {
	f := newProfileFixture(t, true, &testBlobStore{})

	f.users.On("UpdateDisplayName", mock.Anything, 7, "Alice B").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/profile/name", bytes.NewBufferString(`{"display_name":"Alice B"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	f.users.AssertExpectations(t)
	f.users.AssertNotCalled(t, "UpdateAvatarURL", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateNameBlank(t *testing.T) {
	f := newProfileFixture(t, true, &testBlobStore{})

	req := httptest.NewRequest(http.MethodPut, "/profile/name", bytes.NewBufferString(`{"display_name":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	f.users.AssertNotCalled(t, "UpdateDisplayName", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateAvatarFromURL(t *testing.T) {
	f := newProfileFixture(t, true, &testBlobStore{})

	f.users.On("UpdateAvatarURL", mock.Anything, 7, "https://cdn.test/new.png").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/profile/avatar", bytes.NewBufferString(`{"avatar_url":"https://cdn.test/new.png"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	f.users.AssertExpectations(t)
	f.users.AssertNotCalled(t, "UpdateDisplayName", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateAvatarFromImageCommitsStoredURL(t *testing.T) {
	f := newProfileFixture(t, true, &testBlobStore{})

	var committed string
	f.users.On("UpdateAvatarURL", mock.Anything, 7, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { committed = args.String(2) }).
		Return(nil).Once()

	body, contentType := multipartBody(t, "", "crop.png", []byte("imagedata"))
	req := httptest.NewRequest(http.MethodPut, "/profile/avatar", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		AvatarURL string `json:"avatar_url"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, committed, resp.AvatarURL)
	assert.Contains(t, committed, "avatars/7/")
	f.users.AssertExpectations(t)
}

func TestUpdateAvatarUploadFailureCommitsNothing(t *testing.T) {
	f := newProfileFixture(t, true, &testBlobStore{err: errors.New("store down")})

	body, contentType := multipartBody(t, "", "crop.png", []byte("imagedata"))
	req := httptest.NewRequest(http.MethodPut, "/profile/avatar", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	f.users.AssertNotCalled(t, "UpdateAvatarURL", mock.Anything, mock.Anything, mock.Anything)
}
