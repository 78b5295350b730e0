package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ozanardine/phanteon-rewards/internal/config"
)

const principalKey = "discord_id"

var errMissingIdentity = errors.New("token carries no discord identity")

type Middleware struct {
	secret []byte
}

func NewMiddleware(cfg *config.Config) *Middleware {
	return &Middleware{secret: []byte(cfg.AuthJWTSecret)}
}

// Handler verifies the bearer token issued by the website login and exposes the
// caller's Discord id to handlers.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(m.secret) == 0 {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "auth_not_configured"})
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		discordID, err := m.Verify(strings.TrimSpace(authHeader[7:]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		c.Set(principalKey, discordID)
		c.Next()
	}
}

// Verify checks an HS256 token and returns its discord_id claim, falling back to sub.
func (m *Middleware) Verify(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	if id, ok := claims["discord_id"].(string); ok && id != "" {
		return id, nil
	}
	if sub, _ := claims.GetSubject(); sub != "" {
		return sub, nil
	}
	return "", errMissingIdentity
}

// DiscordID returns the authenticated caller set by Handler.
func DiscordID(c *gin.Context) (string, bool) {
	id := c.GetString(principalKey)
	return id, id != ""
}
