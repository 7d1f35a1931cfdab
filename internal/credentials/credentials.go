package credentials

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"possync/internal/domain"
	"possync/internal/models"
)

const refreshTokenAccount = "refresh-token"

// Manager holds the client's credential state. The access token and session
// cookies live only in memory and vanish on restart; the refresh token is
// delegated to OS secure storage. This split keeps the exfiltration blast
// radius of the on-disk state small.
type Manager struct {
	mu      sync.RWMutex
	token   oauth2.Token
	user    *models.AuthenticatedUser
	cookies []string

	store  domain.SecretStore
	logger *zerolog.Logger
}

func NewManager(store domain.SecretStore, logger *zerolog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// SetAccessToken replaces the in-memory access token. A zero expiresAt
// means the token does not expire client-side.
func (m *Manager) SetAccessToken(token string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = oauth2.Token{AccessToken: token, TokenType: "Bearer", Expiry: expiresAt}
}

// AccessToken returns the current token, or "" when absent or expired.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.token.Valid() {
		return ""
	}
	return m.token.AccessToken
}

// SetAuthenticatedUser stores the operator snapshot from the login flow.
func (m *Manager) SetAuthenticatedUser(user *models.AuthenticatedUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = user
}

// AuthenticatedUser returns the stored operator snapshot, nil if logged out.
func (m *Manager) AuthenticatedUser() *models.AuthenticatedUser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// SetSessionCookies retains name=value pairs from Set-Cookie values,
// stripping attributes. A nil slice leaves existing cookies untouched.
func (m *Manager) SetSessionCookies(raw []string) {
	if raw == nil {
		return
	}

	cookies := make([]string, 0, len(raw))
	for _, c := range raw {
		pair := strings.TrimSpace(strings.SplitN(c, ";", 2)[0])
		if pair == "" {
			continue
		}
		cookies = append(cookies, pair)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies = cookies
}

// SessionCookieHeader joins retained cookies for a Cookie header, "" if none.
func (m *Manager) SessionCookieHeader() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return strings.Join(m.cookies, "; ")
}

// SaveRefreshToken persists the long-lived credential in secure storage.
func (m *Manager) SaveRefreshToken(token string) error {
	return m.store.Save(refreshTokenAccount, token)
}

// LoadRefreshToken returns the stored credential, "" when absent. A storage
// failure also reads as absent: the operator is simply logged out.
func (m *Manager) LoadRefreshToken() string {
	return m.store.Load(refreshTokenAccount)
}

// ClearRefreshToken removes the stored credential (logout flow).
func (m *Manager) ClearRefreshToken() error {
	return m.store.Clear(refreshTokenAccount)
}

// Reset drops all credential state, memory and secure storage.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.token = oauth2.Token{}
	m.user = nil
	m.cookies = nil
	m.mu.Unlock()

	if err := m.store.Clear(refreshTokenAccount); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to clear refresh token from secure storage")
	}
}
