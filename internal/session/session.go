package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
)

// ErrNoSession is returned when an operation requires an authenticated
// principal and none is present.
var ErrNoSession = errors.New("no authenticated session")

type principalKey struct{}

// WithPrincipal stores the authenticated principal on the context.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext extracts the principal placed by the auth middleware.
func FromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	return p, ok
}

// Change describes a session transition delivered to OnChange listeners.
type Change struct {
	Principal models.Principal
	SignedIn  bool
}

// Manager is the identity session: it verifies bearer tokens, resolves the
// current principal, tracks revoked sessions and notifies listeners of
// sign-in/sign-out transitions.
type Manager struct {
	tokens *Tokens
	users  repositories.UserRepository
	logger *zap.SugaredLogger

	mu           sync.Mutex
	revoked      map[string]struct{}
	listeners    map[int]func(Change)
	nextListener int
}

// NewManager constructs a Manager.
func NewManager(tokens *Tokens, users repositories.UserRepository, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		tokens:    tokens,
		users:     users,
		logger:    logger,
		revoked:   map[string]struct{}{},
		listeners: map[int]func(Change){},
	}
}

// SignIn mints a token for the user and notifies listeners.
func (m *Manager) SignIn(user models.User) (string, error) {
	token, err := m.tokens.Mint(user)
	if err != nil {
		return "", err
	}
	m.notify(Change{Principal: user.Principal(), SignedIn: true})
	return token, nil
}

// Authenticate verifies a raw bearer token and loads its principal. The
// lookup happens on every call; nothing is cached between requests.
func (m *Manager) Authenticate(ctx context.Context, raw string) (models.Principal, error) {
	claims, err := m.tokens.Verify(raw)
	if err != nil {
		return models.Principal{}, ErrNoSession
	}

	m.mu.Lock()
	_, revoked := m.revoked[claims.TokenID]
	m.mu.Unlock()
	if revoked {
		return models.Principal{}, ErrNoSession
	}

	user, err := m.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return models.Principal{}, ErrNoSession
	}
	return user.Principal(), nil
}

// Current returns the principal attached to the context by the auth
// middleware, or ErrNoSession.
func (m *Manager) Current(ctx context.Context) (models.Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return models.Principal{}, ErrNoSession
	}
	return p, nil
}

// SignOut revokes the token's session and notifies listeners. Screens that
// require authentication react to the change by tearing down.
func (m *Manager) SignOut(ctx context.Context, raw string) error {
	claims, err := m.tokens.Verify(raw)
	if err != nil {
		return ErrNoSession
	}

	m.mu.Lock()
	m.revoked[claims.TokenID] = struct{}{}
	m.mu.Unlock()

	principal := models.Principal{ID: claims.UserID}
	if user, err := m.users.GetUser(ctx, claims.UserID); err == nil {
		principal = user.Principal()
	}
	m.logger.Infow("session signed out", "user_id", claims.UserID)
	m.notify(Change{Principal: principal, SignedIn: false})
	return nil
}

// OnChange registers a listener for session transitions. The returned
// function unsubscribes it; calling it more than once is harmless.
func (m *Manager) OnChange(fn func(Change)) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify(change Change) {
	m.mu.Lock()
	fns := make([]func(Change), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}
