package session

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/unkn0wn-root/shopcache"
)

// AdminRole grants access to product writes.
const AdminRole = "admin"

var ErrNoAuthenticator = errors.New("session: authenticator is required")

// Authenticator is the remote auth API.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (shopcache.AuthResponse, error)
	Register(ctx context.Context, fullName, email, password string) (shopcache.AuthResponse, error)
	CheckStatus(ctx context.Context, token string) (shopcache.AuthResponse, error)
}

type Options struct {
	Authenticator Authenticator
	Store         TokenStore       // nil => MemoryStore
	Logger        shopcache.Logger // nil => NopLogger
	// OnLogout runs after every logout; wire it to the session's Cache.Clear.
	OnLogout func(ctx context.Context)
}

// Manager holds the signed-in user. Auth failures never surface as errors:
// they sign the session out and report false.
type Manager struct {
	auth     Authenticator
	store    TokenStore
	log      shopcache.Logger
	onLogout func(ctx context.Context)

	mu     sync.RWMutex
	status Status
	user   *shopcache.User
	token  string
}

// New starts in StatusChecking with whatever token the store holds.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Authenticator == nil {
		return nil, ErrNoAuthenticator
	}
	m := &Manager{
		auth:     opts.Authenticator,
		store:    opts.Store,
		log:      opts.Logger,
		onLogout: opts.OnLogout,
		status:   StatusChecking,
	}
	if m.store == nil {
		m.store = &MemoryStore{}
	}
	if m.log == nil {
		m.log = shopcache.NopLogger{}
	}
	tok, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn("token store load failed", shopcache.Fields{"err": err})
	}
	m.token = tok
	return m, nil
}

func (m *Manager) Login(ctx context.Context, email, password string) bool {
	resp, err := m.auth.Login(ctx, email, password)
	return m.settle(ctx, "login", resp, err)
}

func (m *Manager) Register(ctx context.Context, fullName, email, password string) bool {
	resp, err := m.auth.Register(ctx, fullName, email, password)
	return m.settle(ctx, "register", resp, err)
}

// CheckStatus verifies the stored token. Without one it signs out and
// returns false without calling the API.
func (m *Manager) CheckStatus(ctx context.Context) bool {
	tok, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn("token store load failed", shopcache.Fields{"err": err})
	}
	if tok == "" {
		m.Logout(ctx)
		return false
	}
	resp, err := m.auth.CheckStatus(ctx, tok)
	return m.settle(ctx, "check-status", resp, err)
}

// Logout clears user and token, removes the stored token and runs OnLogout.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.user = nil
	m.token = ""
	m.status = Transition(m.status, OutcomeSignedOut)
	m.mu.Unlock()

	if err := m.store.Remove(ctx); err != nil {
		m.log.Warn("token store remove failed", shopcache.Fields{"err": err})
	}
	if m.onLogout != nil {
		m.onLogout(ctx)
	}
}

func (m *Manager) settle(ctx context.Context, op string, resp shopcache.AuthResponse, err error) bool {
	if err == nil && resp.Token == "" {
		err = errors.New("session: response carried no token")
	}
	if err != nil {
		m.log.Info("auth rejected", shopcache.Fields{"op": op, "err": err})
		m.mu.Lock()
		m.status = Transition(m.status, OutcomeRejected)
		m.mu.Unlock()
		m.Logout(ctx)
		return false
	}

	u := resp.User
	m.mu.Lock()
	m.user = &u
	m.token = resp.Token
	m.status = Transition(m.status, OutcomeSignedIn)
	m.mu.Unlock()

	if err := m.store.Save(ctx, resp.Token); err != nil {
		m.log.Warn("token store save failed", shopcache.Fields{"err": err})
	}
	m.log.Debug("signed in", shopcache.Fields{"op": op, "user": u.ID})
	return true
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// User returns a copy of the signed-in user, or nil.
func (m *Manager) User() *shopcache.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	u.Roles = slices.Clone(u.Roles)
	return &u
}

// Token is a client.TokenSource.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) IsAdmin() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && slices.Contains(m.user.Roles, AdminRole)
}
