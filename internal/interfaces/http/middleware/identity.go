package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/advisorhub/backend/internal/infrastructure/auth"
	"github.com/advisorhub/backend/internal/infrastructure/logger"
	"github.com/advisorhub/backend/internal/interfaces/http/dto"
)

// Identity headers and gin context keys
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
	TenantIDKey    = "tenant_id"
	UserIDKey      = "user_id"

	// MaxIdentityLength bounds tenant and user ids from any source
	MaxIdentityLength = 64
)

// IdentityConfig configures Identity
type IdentityConfig struct {
	// Verifier validates bearer tokens; nil or disabled means tokens are not accepted
	Verifier *auth.Verifier
	// AllowHeaders accepts X-Tenant-ID / X-User-ID when no bearer token is sent
	AllowHeaders bool
	Logger       *zap.Logger
}

// Identity resolves the calling tenant and user from a bearer token, or from
// identity headers when allowed. Requests without an identity get 401.
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		tenantID, userID, err := resolveIdentity(c, cfg)
		if err != nil {
			log.Debug("rejected caller", zap.String("path", c.Request.URL.Path), zap.Error(err))
			abort(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, err.Error())
			return
		}

		c.Set(TenantIDKey, tenantID)
		c.Set(UserIDKey, userID)
		ctx := c.Request.Context()
		l := logger.FromContext(ctx)
		ctx, l = logger.WithTenantID(ctx, l, tenantID)
		ctx, _ = logger.WithUserID(ctx, l, userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

var (
	errNoIdentity   = errors.New("authentication required")
	errBadIdentity  = errors.New("invalid tenant or user id")
	errBadAuthValue = errors.New("authorization header must use the Bearer scheme")
)

func resolveIdentity(c *gin.Context, cfg IdentityConfig) (string, string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return "", "", errBadAuthValue
		}
		claims, err := cfg.Verifier.Verify(token)
		if err != nil {
			return "", "", err
		}
		return checkIdentity(claims.TenantID, claims.UserID)
	}
	if cfg.AllowHeaders {
		tenantID := strings.TrimSpace(c.GetHeader(HeaderTenantID))
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if tenantID != "" {
			return checkIdentity(tenantID, userID)
		}
	}
	return "", "", errNoIdentity
}

func checkIdentity(tenantID, userID string) (string, string, error) {
	if !validIdentity(tenantID) || (userID != "" && !validIdentity(userID)) {
		return "", "", errBadIdentity
	}
	return tenantID, userID, nil
}

// validIdentity accepts short ids made of letters, digits, '-', '_' and '.'
func validIdentity(id string) bool {
	if id == "" || len(id) > MaxIdentityLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// GetTenantID returns the tenant set by Identity
func GetTenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}

// GetUserID returns the user set by Identity
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
