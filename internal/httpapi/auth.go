package httpapi

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
	"github.com/lumilearn/lumilearn-backend/internal/session"
)

// AuthConfig holds session verification settings.
type AuthConfig struct {
	Mode     string // "jwt" or "none"
	Secret   string
	Denylist session.Denylist
}

// Claims is the session token payload. Tokens are issued by the auth
// provider and verified locally with a shared HMAC secret.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken mints a signed session token. Used by the development token
// endpoint and by tests.
func IssueToken(secret, userID string, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// skipAuth lists paths that carry their own verification or none at all.
// The payments webhook is authenticated by its HMAC signature instead; the
// dev token endpoint only exists in the development environment.
func skipAuth(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics",
		"/api/v1/webhooks/payments", "/api/v1/auth/dev-token":
		return true
	}
	return false
}

// NewAuthMiddleware returns a Fiber middleware that validates the session
// token and stores the caller's identity in request locals.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if skipAuth(c.Path()) {
			return c.Next()
		}

		// "none" mode trusts headers, for local development and tests
		// that exercise handlers rather than auth.
		if cfg.Mode == "none" {
			c.Locals("user_id", c.Get("X-User-ID"))
			role := c.Get("X-User-Role")
			if role == "" {
				role = string(domain.RoleAdmin)
			}
			c.Locals("role", domain.Role(role))
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return failMsg(c, logger, apperr.KindUnauthenticated, "Authorization header is required")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return failMsg(c, logger, apperr.KindUnauthenticated, "Authorization header must use Bearer scheme")
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		var claims Claims
		token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, apperr.Ef(apperr.KindUnauthenticated, "unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		})
		if err != nil || !token.Valid {
			logger.Warn().Err(err).Str("path", c.Path()).Msg("rejected session token")
			return failMsg(c, logger, apperr.KindUnauthenticated, "Invalid or expired session")
		}

		if cfg.Denylist != nil && cfg.Denylist.IsRevoked(c.Context(), claims.ID) {
			return failMsg(c, logger, apperr.KindUnauthenticated, "Session has been revoked")
		}

		role := domain.Role(claims.Role)
		if claims.UserID == "" || !role.Valid() {
			return failMsg(c, logger, apperr.KindUnauthenticated, "Invalid session claims")
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("role", role)
		c.Locals("claims", &claims)
		return c.Next()
	}
}

// requireRole restricts a route to the given roles. Admins always pass.
func requireRole(logger zerolog.Logger, roles ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(domain.Role)
		if role == domain.RoleAdmin {
			return c.Next()
		}
		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}
		return failMsg(c, logger, apperr.KindForbidden, "Insufficient permissions for this operation")
	}
}

func callerID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func callerRole(c *fiber.Ctx) domain.Role {
	role, _ := c.Locals("role").(domain.Role)
	return role
}
