package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisorhub/backend/internal/infrastructure/auth"
	"github.com/advisorhub/backend/internal/infrastructure/config"
	"github.com/advisorhub/backend/internal/infrastructure/logger"
	"github.com/advisorhub/backend/internal/interfaces/http/dto"
)

func newVerifier() *auth.Verifier {
	return auth.NewVerifier(config.AuthConfig{JWTSecret: "test-secret", Issuer: "practice-app"})
}

func serveIdentity(t *testing.T, cfg IdentityConfig, setup func(*http.Request)) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	r := newTestRouter(RequestID(), Identity(cfg))
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	setup(req)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	body := map[string]string{}
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestIdentity_BearerToken(t *testing.T) {
	v := newVerifier()
	token, err := v.Issue("tenant-1", "user-1", time.Hour)
	require.NoError(t, err)

	w, body := serveIdentity(t, IdentityConfig{Verifier: v}, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-1", body["tenant_id"])
	assert.Equal(t, "user-1", body["user_id"])
}

func TestIdentity_TokenWinsOverHeaders(t *testing.T) {
	v := newVerifier()
	token, err := v.Issue("tenant-1", "user-1", time.Hour)
	require.NoError(t, err)

	w, body := serveIdentity(t, IdentityConfig{Verifier: v, AllowHeaders: true}, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
		r.Header.Set(HeaderTenantID, "tenant-2")
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-1", body["tenant_id"])
}

func TestIdentity_Rejections(t *testing.T) {
	v := newVerifier()
	expired, err := auth.NewVerifier(config.AuthConfig{JWTSecret: "test-secret", Issuer: "practice-app"}).
		Issue("tenant-1", "user-1", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     IdentityConfig
		setup   func(*http.Request)
		message string
	}{
		{
			name:    "no credentials",
			cfg:     IdentityConfig{Verifier: v},
			setup:   func(*http.Request) {},
			message: "authentication required",
		},
		{
			name: "headers not allowed",
			cfg:  IdentityConfig{Verifier: v},
			setup: func(r *http.Request) {
				r.Header.Set(HeaderTenantID, "tenant-1")
			},
			message: "authentication required",
		},
		{
			name: "basic scheme",
			cfg:  IdentityConfig{Verifier: v},
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
			},
			message: "Bearer",
		},
		{
			name: "expired token",
			cfg:  IdentityConfig{Verifier: v},
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+expired)
			},
			message: auth.ErrExpiredToken.Error(),
		},
		{
			name: "token without verifier",
			cfg:  IdentityConfig{AllowHeaders: true},
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer abc")
			},
			message: auth.ErrNoSecret.Error(),
		},
		{
			name: "invalid header tenant",
			cfg:  IdentityConfig{AllowHeaders: true},
			setup: func(r *http.Request) {
				r.Header.Set(HeaderTenantID, "tenant 1; drop")
			},
			message: "invalid tenant or user id",
		},
		{
			name: "oversized header user",
			cfg:  IdentityConfig{AllowHeaders: true},
			setup: func(r *http.Request) {
				r.Header.Set(HeaderTenantID, "tenant-1")
				r.Header.Set(HeaderUserID, strings.Repeat("u", MaxIdentityLength+1))
			},
			message: "invalid tenant or user id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := serveIdentity(t, tt.cfg, tt.setup)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			info := decodeError(t, w)
			assert.Equal(t, dto.ErrCodeUnauthorized, info.Code)
			assert.Contains(t, info.Message, tt.message)
			assert.NotEmpty(t, info.RequestID)
		})
	}
}

func TestIdentity_HeadersWhenAllowed(t *testing.T) {
	w, body := serveIdentity(t, IdentityConfig{AllowHeaders: true}, func(r *http.Request) {
		r.Header.Set(HeaderTenantID, " tenant-1 ")
		r.Header.Set(HeaderUserID, "user.1")
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-1", body["tenant_id"])
	assert.Equal(t, "user.1", body["user_id"])
}

func TestIdentity_EnrichesRequestLogger(t *testing.T) {
	r := gin.New()
	r.Use(Identity(IdentityConfig{AllowHeaders: true}))
	r.GET("/test", func(c *gin.Context) {
		assert.Equal(t, "tenant-1", logger.GetTenantID(c.Request.Context()))
		assert.Equal(t, "user-1", logger.GetUserID(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderTenantID, "tenant-1")
	req.Header.Set(HeaderUserID, "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
