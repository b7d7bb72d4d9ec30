package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/wasteloop/internal/authorization"
	obscontext "github.com/smallbiznis/wasteloop/internal/observability/context"
)

const (
	HeaderUserID     = "X-User-Id"
	HeaderActorRole  = "X-Actor-Role"
	contextActorKey  = "actor"
	defaultActorRole = authorization.RoleUser
)

// ActorRequired resolves the caller forwarded by the gateway.
func ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseOptionalSnowflakeID(c.GetHeader(HeaderUserID))
		if err != nil || id == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole)))
		if role == "" {
			role = defaultActorRole
		}

		actor := authorization.Actor{UserID: *id, Role: role}
		c.Set(contextActorKey, actor)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), role, id.String()))
		c.Next()
	}
}

func actorFrom(c *gin.Context) (authorization.Actor, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return authorization.Actor{}, false
	}
	actor, ok := value.(authorization.Actor)
	return actor, ok && actor.UserID != 0
}
