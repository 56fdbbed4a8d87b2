package middleware

import (
	"net/http"
	"strings"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	jwtutil "github.com/AmirShokry/medicalchallengearena-sub000/pkg/jwt"
	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Auth verifies the access token and stores the caller's identity on the
// context. Browsers cannot set headers on a websocket handshake, so a
// "token" query parameter is accepted as well.
func Auth(jwtManager *jwtutil.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		claims, err := jwtManager.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(identityKey, models.Identity{UserID: claims.UserID, Username: claims.Username})
		c.Set("userId", claims.UserID)
		c.Set("username", claims.Username)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// IdentityFrom returns the identity stored by Auth.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok
}
