package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/pharmacy-storefront/internal/domain"
	"github.com/example/pharmacy-storefront/internal/infrastructure/storage"
)

const (
	DefaultLifetime      = 15 * time.Minute
	DefaultRefreshMargin = time.Minute
	refreshTimeout       = 30 * time.Second
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotAuthenticated   = errors.New("not logged in")
	ErrSessionExpired     = errors.New("session expired, please log in again")
)

// Service is the remote auth service.
type Service interface {
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
}

type Options struct {
	// Lifetime is assumed for tokens that carry no exp claim.
	Lifetime      time.Duration
	RefreshMargin time.Duration
	Logger        *zap.Logger
}

// Manager owns the shopper's session: it persists tokens, keeps the access
// token fresh and fans logout out to the rest of the client.
type Manager struct {
	service   Service
	doc       *storage.Document[Session]
	opts      Options
	logger    *zap.Logger
	scheduler *RefreshScheduler

	mu         sync.RWMutex
	session    Session
	generation uint64
	onLogout   []func()
}

func NewManager(service Service, kv storage.KV, opts Options) *Manager {
	if opts.Lifetime <= 0 {
		opts.Lifetime = DefaultLifetime
	}
	if opts.RefreshMargin <= 0 {
		opts.RefreshMargin = DefaultRefreshMargin
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	m := &Manager{
		service: service,
		doc:     storage.NewDocument[Session](kv, storage.KeySession, opts.Logger),
		opts:    opts,
		logger:  opts.Logger,
	}
	m.scheduler = NewRefreshScheduler(refreshInterval(opts.Lifetime, opts.RefreshMargin), m.scheduledRefresh)
	return m
}

// Hydrate restores a persisted session. A missing or corrupt entry leaves the
// shopper logged out.
func (m *Manager) Hydrate(ctx context.Context) {
	session, ok := m.doc.Load(ctx)
	if !ok || !session.IsAuthenticated() {
		m.logger.Debug("no stored session")
		return
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.logger.Info("session restored", zap.String("user_id", session.UserID), zap.Time("expires_at", session.ExpiresAt))
	m.schedule(session)
}

func (m *Manager) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	tokens, err := m.service.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("login failed: %w", err)
	}

	session, err := newSession(*tokens, m.opts.Lifetime, time.Now())
	if err != nil {
		return Session{}, fmt.Errorf("login failed: %w", err)
	}

	m.mu.Lock()
	m.generation++
	m.session = session
	m.mu.Unlock()

	m.persist(ctx, session)
	m.schedule(session)
	m.logger.Info("logged in", zap.String("user_id", session.UserID))
	return session, nil
}

// Refresh exchanges the refresh token for a new access token. A 401 from the
// auth service is irrecoverable and logs the shopper out.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	current := m.session
	generation := m.generation
	m.mu.RUnlock()

	if current.RefreshToken == "" {
		return ErrNotAuthenticated
	}

	tokens, err := m.service.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			m.logger.Warn("refresh token rejected, logging out", zap.String("user_id", current.UserID))
			m.Logout(ctx)
			return ErrSessionExpired
		}
		return fmt.Errorf("token refresh failed: %w", err)
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = current.RefreshToken
	}

	session, err := newSession(*tokens, m.opts.Lifetime, time.Now())
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}

	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	m.session = session
	m.mu.Unlock()

	m.persist(ctx, session)
	m.schedule(session)
	m.logger.Debug("access token refreshed", zap.Time("expires_at", session.ExpiresAt))
	return nil
}

// Logout clears the session everywhere and runs the OnLogout hooks.
func (m *Manager) Logout(ctx context.Context) {
	m.scheduler.Stop()

	m.mu.Lock()
	wasAuthenticated := m.session.IsAuthenticated()
	userID := m.session.UserID
	m.generation++
	m.session = Session{}
	hooks := append([]func(){}, m.onLogout...)
	m.mu.Unlock()

	if err := m.doc.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear stored session", zap.Error(err))
	}
	if !wasAuthenticated {
		return
	}
	for _, fn := range hooks {
		fn()
	}
	m.logger.Info("logged out", zap.String("user_id", userID))
}

// OnLogout registers fn to run after every logout.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *Manager) IsAuthenticated() bool {
	return m.Session().IsAuthenticated()
}

func (m *Manager) AccessToken() string {
	return m.Session().AccessToken
}

func (m *Manager) UserID() string {
	return m.Session().UserID
}

// Close stops background refresh.
func (m *Manager) Close() {
	m.scheduler.Stop()
}

func (m *Manager) persist(ctx context.Context, session Session) {
	if err := m.doc.Save(ctx, session); err != nil {
		m.logger.Warn("failed to persist session", zap.Error(err))
	}
}

func (m *Manager) schedule(session Session) {
	delay := time.Until(session.ExpiresAt) - m.opts.RefreshMargin
	m.scheduler.Reset(delay)
}

func (m *Manager) scheduledRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := m.Refresh(ctx); err != nil && !errors.Is(err, ErrSessionExpired) {
		m.logger.Warn("scheduled token refresh failed", zap.Error(err))
	}
}
