package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware accepts a bearer token that is either one of staticTokens or
// a JWT signed with jwtSecret. With neither configured every request passes.
func AuthMiddleware(log *slog.Logger, staticTokens []string, jwtSecret string) gin.HandlerFunc {
	tokens := make(map[string]struct{}, len(staticTokens))
	for _, t := range staticTokens {
		if t = strings.TrimSpace(t); t != "" {
			tokens[t] = struct{}{}
		}
	}
	jwtSecret = strings.TrimSpace(jwtSecret)

	if len(tokens) == 0 && jwtSecret == "" {
		log.Warn("operator routes are unauthenticated: set STATIC_TOKENS or JWT_HMAC_SECRET")
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			fail(c, http.StatusUnauthorized, "missing authorization")
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			fail(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}
		tokenStr := parts[1]

		if jwtSecret != "" {
			_, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenMalformed
				}
				return []byte(jwtSecret), nil
			}, jwt.WithLeeway(5*time.Second))
			if err == nil {
				c.Next()
				return
			}
		}

		if _, ok := tokens[tokenStr]; ok {
			c.Next()
			return
		}

		fail(c, http.StatusUnauthorized, "invalid token")
	}
}
