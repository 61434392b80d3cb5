package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/infrastructure/cache"
)

// Credentials authenticate one call against an org
type Credentials struct {
	AccessToken string
	InstanceURL string
}

// ProviderID tags the credentials as Salesforce credentials
func (Credentials) ProviderID() crm.ProviderID {
	return crm.ProviderSalesforce
}

// TokenSource resolves access tokens with the OAuth refresh-token flow and
// caches them per tenant and user
type TokenSource struct {
	config     *Config
	httpClient *http.Client
	store      cache.TokenStore
	ttl        time.Duration
	logger     *zap.Logger
}

// TokenSourceOption configures a TokenSource
type TokenSourceOption func(*TokenSource)

// WithTokenTTL sets how long exchanged tokens are cached
func WithTokenTTL(ttl time.Duration) TokenSourceOption {
	return func(s *TokenSource) {
		s.ttl = ttl
	}
}

// WithTokenHTTPClient replaces the HTTP client used for the exchange
func WithTokenHTTPClient(client *http.Client) TokenSourceOption {
	return func(s *TokenSource) {
		s.httpClient = client
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger *zap.Logger) TokenSourceOption {
	return func(s *TokenSource) {
		s.logger = logger
	}
}

// NewTokenSource creates a token source for the connected app in config
func NewTokenSource(config *Config, store cache.TokenStore, opts ...TokenSourceOption) (*TokenSource, error) {
	if err := config.ValidateOAuth(); err != nil {
		return nil, err
	}
	s := &TokenSource{
		config:     config,
		httpClient: &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second},
		store:      store,
		ttl:        90 * time.Minute,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func tokenCacheKey(tenantID, userID string) string {
	return "salesforce:" + tenantID + ":" + userID
}

// Credentials returns cached credentials or performs a refresh-token exchange
func (s *TokenSource) Credentials(ctx context.Context, tenantID, userID string) (Credentials, error) {
	key := tokenCacheKey(tenantID, userID)

	cached, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		var tok tokenResponse
		if jsonErr := json.Unmarshal([]byte(cached), &tok); jsonErr == nil && tok.AccessToken != "" {
			return s.credentialsFrom(tok), nil
		}
		_ = s.store.Delete(ctx, key)
	case !errors.Is(err, cache.ErrTokenNotFound):
		s.logger.Warn("token cache read failed, exchanging refresh token",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}

	tok, err := s.exchange(ctx)
	if err != nil {
		return Credentials{}, err
	}

	if data, err := json.Marshal(tok); err == nil {
		if err := s.store.Set(ctx, key, string(data), s.ttl); err != nil {
			s.logger.Warn("failed to cache access token", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
	return s.credentialsFrom(*tok), nil
}

// Invalidate drops the cached token, for example after an INVALID_SESSION_ID
func (s *TokenSource) Invalidate(ctx context.Context, tenantID, userID string) error {
	return s.store.Delete(ctx, tokenCacheKey(tenantID, userID))
}

func (s *TokenSource) credentialsFrom(tok tokenResponse) Credentials {
	instanceURL := strings.TrimRight(tok.InstanceURL, "/")
	if instanceURL == "" {
		instanceURL = s.config.InstanceURL
	}
	return Credentials{AccessToken: tok.AccessToken, InstanceURL: instanceURL}
}

// exchange trades the refresh token for an access token
func (s *TokenSource) exchange(ctx context.Context) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", s.config.ClientID)
	form.Set("client_secret", s.config.ClientSecret)
	form.Set("refresh_token", s.config.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.LoginURL+"/services/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("salesforce: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("salesforce: failed to read token response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var oe oauthError
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &oe) == nil && oe.Error != "" {
			msg = oe.Error + ": " + oe.Description
		}
		return nil, &crm.AuthError{
			Provider: crm.ProviderSalesforce,
			Message:  msg,
			Err:      &APIError{StatusCode: resp.StatusCode, ErrorCode: strings.ToUpper(oe.Error), Message: oe.Description},
		}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, &crm.AuthError{Provider: crm.ProviderSalesforce, Message: "unreadable token response", Err: err}
	}
	if tok.AccessToken == "" {
		return nil, &crm.AuthError{Provider: crm.ProviderSalesforce, Message: "token response has no access token"}
	}

	s.logger.Debug("exchanged Salesforce refresh token", zap.String("instance_url", tok.InstanceURL))
	return &tok, nil
}
