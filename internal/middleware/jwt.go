package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/service"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
	"github.com/noah-isme/factory-ops-api/pkg/response"
)

// Context keys populated by JWT.
const (
	ContextUserKey  = "currentUser"
	ContextActorKey = "currentActor"
)

// accessTokenParam carries the token for clients that cannot set headers,
// such as browser EventSource streams.
const accessTokenParam = "access_token"

// JWT protects routes by requiring a valid access token. The resolved claims
// and the operator they describe are stored on the gin context.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextActorKey, models.ActorFromClaims(claims))
		c.Next()
	}
}

// ActorFrom returns the operator attached by JWT, or the zero Actor.
func ActorFrom(c *gin.Context) models.Actor {
	if value, ok := c.Get(ContextActorKey); ok {
		if actor, ok := value.(models.Actor); ok {
			return actor
		}
	}
	if value, ok := c.Get(ContextUserKey); ok {
		if claims, ok := value.(*models.JWTClaims); ok {
			return models.ActorFromClaims(claims)
		}
	}
	return models.Actor{}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query(accessTokenParam); token != "" {
			return token, nil
		}
		return "", appErrors.ErrUnauthorized
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
