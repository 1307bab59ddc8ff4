package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"peer-server/internal/mocks"
	"peer-server/internal/models"
	"peer-server/internal/repositories"
)

func setupAccountRouter(handler *AccountHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/users", handler.Register)
	r.POST("/auth", handler.Authenticate)
	r.GET("/users/:id", handler.GetUser)
	r.GET("/users", handler.ListUsers)
	r.GET("/userid/:username/:discriminator", handler.LookupHandle)
	return r
}

func registerBody(username, discriminator, pswd string) *bytes.Buffer {
	body, _ := json.Marshal(map[string]string{
		"username":      username,
		"discriminator": discriminator,
		"pswd":          pswd,
	})
	return bytes.NewBuffer(body)
}

func TestRegisterSuccess(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := NewAccountHandler(users, new(mocks.SessionStoreMock), nil)
	router := setupAccountRouter(handler)

	users.On("CreateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.Username == "Ann" && u.Discriminator == "0001" && u.ID != "" && u.PasswordHash != ""
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/users", registerBody("Ann", "0001", "secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "", resp["error"])
	require.Equal(t, "Ann#0001", resp["user"])
	users.AssertExpectations(t)
}

func TestRegisterTooLong(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := NewAccountHandler(users, new(mocks.SessionStoreMock), nil)
	router := setupAccountRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/users", registerBody(strings.Repeat("a", 21), "0001", "secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "TooLong")
	users.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
}

func TestRegisterUsernameRequired(t *testing.T) {
	handler := NewAccountHandler(new(mocks.UserRepositoryMock), new(mocks.SessionStoreMock), nil)
	router := setupAccountRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/users", registerBody("", "0001", "secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "UsernameRequired")
}

func TestRegisterInvalidChars(t *testing.T) {
	handler := NewAccountHandler(new(mocks.UserRepositoryMock), new(mocks.SessionStoreMock), nil)
	router := setupAccountRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/users", registerBody("Ann Smith", "0001", "secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "InvalidChars")
}

func TestRegisterInvalidCharsWinsOverTooLong(t *testing.T) {
	handler := NewAccountHandler(new(mocks.UserRepositoryMock), new(mocks.SessionStoreMock), nil)
	router := setupAccountRouter(handler)

	// over-long and malformed at once: the character check runs last
	req := httptest.NewRequest(http.MethodPost, "/users", registerBody(strings.Repeat("a", 20)+" ", "0001", "secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "InvalidChars")
}

func TestRegisterUsernameTaken(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := NewAccountHandler(users, new(mocks.SessionStoreMock), nil)
	router := setupAccountRouter(handler)

	users.On("CreateUser", mock.Anything, mock.Anything).Return(repositories.ErrUsernameTaken).Once()

	req := httptest.NewRequest(http.MethodPost, "/users", registerBody("Ann", "0001", "secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "UsernameTaken")
	users.AssertExpectations(t)
}

func authBody(handle, pswd string) *bytes.Buffer {
	body, _ := json.Marshal(map[string]string{"handle": handle, "pswd": pswd})
	return bytes.NewBuffer(body)
}

func TestAuthenticateSuccess(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	sessions := new(mocks.SessionStoreMock)
	handler := NewAccountHandler(users, sessions, nil)
	router := setupAccountRouter(handler)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	users.On("GetUserByHandle", mock.Anything, "Ann", "0001").
		Return(models.User{ID: "u1", Username: "Ann", Discriminator: "0001", PasswordHash: string(hash)}, nil).Once()
	sessions.On("Issue", "u1").Return("tok", nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth", authBody("Ann#0001", "secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])
	require.Equal(t, "tok", resp["token"])
	require.Equal(t, "u1", resp["user_id"])
	users.AssertExpectations(t)
	sessions.AssertExpectations(t)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	sessions := new(mocks.SessionStoreMock)
	handler := NewAccountHandler(users, sessions, nil)
	router := setupAccountRouter(handler)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	users.On("GetUserByHandle", mock.Anything, "Ann", "0001").
		Return(models.User{ID: "u1", Username: "Ann", Discriminator: "0001", PasswordHash: string(hash)}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth", authBody("Ann#0001", "wrong"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":false`)
	sessions.AssertNotCalled(t, "Issue", mock.Anything)
}

func TestAuthenticateUnknownHandle(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := NewAccountHandler(users, new(mocks.SessionStoreMock), nil)
	router := setupAccountRouter(handler)

	users.On("GetUserByHandle", mock.Anything, "Ghost", "9999").
		Return(models.User{}, repositories.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth", authBody("Ghost#9999", "secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateMalformedHandle(t *testing.T) {
	handler := NewAccountHandler(new(mocks.UserRepositoryMock), new(mocks.SessionStoreMock), nil)
	router := setupAccountRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/auth", authBody("NoDiscriminator", "secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetUserSuccess(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := NewAccountHandler(users, new(mocks.SessionStoreMock), nil)
	router := setupAccountRouter(handler)

	users.On("GetUser", mock.Anything, "u1").
		Return(models.User{ID: "u1", Username: "Ann", Discriminator: "0001"}, nil).Once()
	users.On("ListMemberships", mock.Anything, "u1").Return([]string{"c1"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/u1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Ann", resp["username"])
	require.Equal(t, []any{"c1"}, resp["chats"])
}

func TestGetUserNotFound(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := NewAccountHandler(users, new(mocks.SessionStoreMock), nil)
	router := setupAccountRouter(handler)

	users.On("GetUser", mock.Anything, "ghost").Return(models.User{}, repositories.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "UserNotFound")
}

func TestListUsers(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler := NewAccountHandler(users, new(mocks.SessionStoreMock), nil)
	router := setupAccountRouter(handler)

	users.On("ListUserIDs", mock.Anything).Return([]string{"u1", "u2"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(2), resp["user_count"])
}
