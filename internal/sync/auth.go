package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/model"

	"github.com/rs/zerolog"
)

const (
	// Tokens are refreshed this long before the server says they expire.
	tokenSkew = 30 * time.Second
	// Used when the records system omits expires_in.
	defaultTokenTTL = 5 * time.Minute
)

// AuthManager caches the records system bearer token. Concurrent callers
// share one refresh.
type AuthManager struct {
	records   config.RecordsConfig
	client    *http.Client
	now       func() time.Time
	token     string
	expiresAt time.Time
	mu        sync.RWMutex
	log       zerolog.Logger
}

func NewAuthManager(cfg *config.Config, client *http.Client) *AuthManager {
	return &AuthManager{
		records: cfg.ExternalAPI.Records,
		client:  client,
		now:     time.Now,
		log:     logger.Get().With().Str("component", "records_auth").Logger(),
	}
}

// Enabled reports whether the records system requires a bearer token.
func (a *AuthManager) Enabled() bool {
	return a.records.AuthEndpoint != ""
}

func (a *AuthManager) GetToken(ctx context.Context) (string, error) {
	a.mu.RLock()
	token, ok := a.cached()
	a.mu.RUnlock()
	if ok {
		return token, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if token, ok := a.cached(); ok {
		return token, nil
	}
	return a.authenticate(ctx)
}

// Invalidate drops the cached token so the next call authenticates again.
func (a *AuthManager) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.expiresAt = time.Time{}
}

// cached must be called with mu held.
func (a *AuthManager) cached() (string, bool) {
	if a.token == "" || !a.now().Before(a.expiresAt.Add(-tokenSkew)) {
		return "", false
	}
	return a.token, true
}

// authenticate must be called with the write lock held.
func (a *AuthManager) authenticate(ctx context.Context) (string, error) {
	a.log.Debug().Msg("Requesting records system token")

	payload, err := json.Marshal(model.AuthTokenRequest{
		Username: a.records.Username,
		Password: a.records.Password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.records.BaseURL+a.records.AuthEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("auth failed with status: %d", resp.StatusCode)
	}

	var tokenResp model.AuthTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}
	if tokenResp.Token == "" {
		return "", fmt.Errorf("auth response carried no token")
	}

	ttl := time.Duration(tokenResp.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	a.token = tokenResp.Token
	a.expiresAt = a.now().Add(ttl)

	a.log.Debug().Time("expires_at", a.expiresAt).Msg("Records system token refreshed")

	return a.token, nil
}
