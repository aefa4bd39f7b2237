package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/httputil"
)

const (
	ContextActor     = "actor"
	QueryAccessToken = "access_token"
)

// Authenticator turns a bearer token into the caller's identity.
type Authenticator interface {
	Authenticate(token string) (*model.Identity, error)
}

type AuthMiddleware struct {
	auth Authenticator
}

func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// Authenticate verifies the JWT and stores the caller's identity in the
// context. Browsers cannot set headers on websocket upgrades, so the token
// may also come from the access_token query parameter.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		identity, err := m.auth.Authenticate(token)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(ContextActor, *identity)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := Actor(c)
		if !ok {
			httputil.RespondWithError(c, errors.NewUnauthenticated("authentication required", nil))
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.NewUnauthorized("permission denied", nil))
	}
}

// Actor returns the identity stored by Authenticate.
func Actor(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Identity{}, false
	}
	actor, ok := v.(model.Identity)
	return actor, ok
}

func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query(QueryAccessToken); token != "" {
			return token, nil
		}
		return "", errors.NewUnauthenticated("missing authorization header", nil)
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.NewUnauthenticated("invalid authorization format", nil)
	}
	return parts[1], nil
}
