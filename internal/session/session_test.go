package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roomchat-service/internal/mocks"
	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
)

func newTestManager(users *mocks.UserRepositoryMock) *Manager {
	return NewManager(NewTokens("test-secret"), users, zap.NewNop().Sugar())
}

func TestMintVerifyRoundtrip(t *testing.T) {
	tokens := NewTokens("test-secret")

	raw, err := tokens.Mint(models.User{ID: 7, DisplayName: "alice"})
	require.NoError(t, err)

	claims, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.NotEmpty(t, claims.TokenID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	raw, err := NewTokens("secret-a").Mint(models.User{ID: 7})
	require.NoError(t, err)

	_, err = NewTokens("secret-b").Verify(raw)
	require.Error(t, err)
}

func TestAuthenticateLoadsPrincipalPerCall(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	m := newTestManager(users)

	user := models.User{ID: 7, Email: "a@b.c", DisplayName: "alice", AvatarURL: "http://x/a.png"}
	users.On("GetUser", mock.Anything, 7).Return(user, nil).Twice()

	raw, err := m.SignIn(user)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		p, err := m.Authenticate(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, "alice", p.DisplayName)
		assert.Equal(t, "http://x/a.png", p.AvatarURL)
	}
	users.AssertExpectations(t)
}

func TestAuthenticateAfterSignOut(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	m := newTestManager(users)

	user := models.User{ID: 7, DisplayName: "alice"}
	users.On("GetUser", mock.Anything, 7).Return(user, nil)

	raw, err := m.SignIn(user)
	require.NoError(t, err)
	require.NoError(t, m.SignOut(context.Background(), raw))

	_, err = m.Authenticate(context.Background(), raw)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSignOutOnlyRevokesItsOwnSession(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	m := newTestManager(users)

	user := models.User{ID: 7, DisplayName: "alice"}
	users.On("GetUser", mock.Anything, 7).Return(user, nil)

	first, err := m.SignIn(user)
	require.NoError(t, err)
	second, err := m.SignIn(user)
	require.NoError(t, err)

	require.NoError(t, m.SignOut(context.Background(), first))

	_, err = m.Authenticate(context.Background(), first)
	require.ErrorIs(t, err, ErrNoSession)
	_, err = m.Authenticate(context.Background(), second)
	require.NoError(t, err)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	m := newTestManager(users)

	raw, err := m.SignIn(models.User{ID: 9})
	require.NoError(t, err)

	users.On("GetUser", mock.Anything, 9).Return(models.User{}, repositories.ErrUserNotFound)

	_, err = m.Authenticate(context.Background(), raw)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestAuthenticateGarbageToken(t *testing.T) {
	m := newTestManager(new(mocks.UserRepositoryMock))

	_, err := m.Authenticate(context.Background(), "not-a-token")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestOnChangeNotifiesAndUnsubscribes(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	m := newTestManager(users)

	user := models.User{ID: 7, DisplayName: "alice"}
	users.On("GetUser", mock.Anything, 7).Return(user, nil)

	var changes []Change
	unsubscribe := m.OnChange(func(c Change) { changes = append(changes, c) })

	raw, err := m.SignIn(user)
	require.NoError(t, err)
	require.NoError(t, m.SignOut(context.Background(), raw))

	require.Len(t, changes, 2)
	assert.True(t, changes[0].SignedIn)
	assert.False(t, changes[1].SignedIn)
	assert.Equal(t, 7, changes[1].Principal.ID)

	unsubscribe()
	unsubscribe() // harmless
	_, err = m.SignIn(user)
	require.NoError(t, err)
	assert.Len(t, changes, 2, "unsubscribed listener must not fire")
}

func TestCurrentReadsContextPrincipal(t *testing.T) {
	m := newTestManager(new(mocks.UserRepositoryMock))

	_, err := m.Current(context.Background())
	require.ErrorIs(t, err, ErrNoSession)

	ctx := WithPrincipal(context.Background(), models.Principal{ID: 3, DisplayName: "bob"})
	p, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, p.ID)
}
