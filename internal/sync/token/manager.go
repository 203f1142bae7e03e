// Package token manages the OAuth token lifecycle for merchant credentials:
// freshness checks, refresh-token exchange, and persisting rotated tokens
// back to the encrypted credential store.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/restobook/sumup-sync/internal/config"
	"github.com/restobook/sumup-sync/internal/domain/credential"
	"github.com/restobook/sumup-sync/internal/platform/sumup"
	"github.com/restobook/sumup-sync/internal/vault"
)

// ErrNoRefreshToken indicates the credential has no refresh token to exchange
var ErrNoRefreshToken = errors.New("token: credential has no refresh token")

// Exchanger performs the provider's refresh-token exchange
type Exchanger interface {
	ExchangeRefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*sumup.TokenResponse, error)
}

// Manager decides token freshness and performs refresh exchanges. Refreshes
// for the same credential are serialized within this process; concurrent
// processes can still double-refresh, which the provider tolerates.
type Manager struct {
	cfg       *config.SumUpConfig
	vault     *vault.Vault
	creds     credential.Repository
	exchanger Exchanger
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewManager creates a token lifecycle manager
func NewManager(logger *slog.Logger, cfg *config.SumUpConfig, v *vault.Vault, creds credential.Repository, exchanger Exchanger) *Manager {
	return &Manager{
		cfg:       cfg,
		vault:     v,
		creds:     creds,
		exchanger: exchanger,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

// EnsureValidToken returns a usable access token for the credential,
// refreshing first when the stored token is expired, expiring within the
// refresh window, or has no recorded expiry.
func (m *Manager) EnsureValidToken(ctx context.Context, cred *credential.Credential) (string, error) {
	if !cred.NeedsRefresh(m.now()) {
		return m.vault.Decrypt(cred.AccessToken), nil
	}
	return m.refresh(ctx, cred)
}

// ForceRefresh performs a refresh exchange regardless of stored expiry. It is
// the single retry hook for authenticated requests that came back 401.
func (m *Manager) ForceRefresh(ctx context.Context, cred *credential.Credential) (string, error) {
	return m.refresh(ctx, cred)
}

func (m *Manager) refresh(ctx context.Context, cred *credential.Credential) (string, error) {
	lock := m.credentialLock(cred.ID)
	lock.Lock()
	defer lock.Unlock()

	refreshToken := m.vault.Decrypt(cred.RefreshToken)
	if refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	clientID := cred.ClientID
	if clientID == "" {
		clientID = m.cfg.DefaultClientID
	}
	clientSecret := m.vault.Decrypt(cred.ClientSecret)
	if clientSecret == "" {
		clientSecret = m.cfg.DefaultClientSecret
	}

	m.logger.Info("refreshing access token",
		"credential_id", cred.ID,
		"merchant_code", cred.MerchantCode,
	)

	token, err := m.exchanger.ExchangeRefreshToken(ctx, clientID, clientSecret, refreshToken)
	if err != nil {
		return "", fmt.Errorf("token: refresh exchange failed: %w", err)
	}

	encryptedAccess, err := m.vault.Encrypt(token.AccessToken)
	if err != nil {
		return "", fmt.Errorf("token: failed to encrypt access token: %w", err)
	}

	// Providers that do not rotate the refresh token return an empty one;
	// keep the stored value in that case.
	newRefresh := token.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	encryptedRefresh, err := m.vault.Encrypt(newRefresh)
	if err != nil {
		return "", fmt.Errorf("token: failed to encrypt refresh token: %w", err)
	}

	expiresAt := m.now().Add(time.Duration(token.ExpiresIn) * time.Second)
	if err := m.creds.UpdateTokens(ctx, cred.ID, encryptedAccess, encryptedRefresh, expiresAt); err != nil {
		return "", fmt.Errorf("token: failed to persist rotated tokens: %w", err)
	}

	// Keep the in-memory credential aligned with what was persisted so a
	// later ForceRefresh within the same run exchanges the current token.
	cred.AccessToken = encryptedAccess
	cred.RefreshToken = encryptedRefresh
	cred.TokenExpiresAt = &expiresAt

	return token.AccessToken, nil
}

func (m *Manager) credentialLock(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}
