package http

import (
	"github.com/gin-gonic/gin"

	"github.com/lcsys/governance/internal/auth"
	"github.com/lcsys/governance/internal/governance"
)

const (
	headerActor = "X-Actor"
	headerRole  = "X-Role"

	defaultActor = "anon"
	defaultRole  = auth.RoleViewer
)

// actorMiddleware reads the caller's identity and role from headers.
// Authentication proper is an upstream concern; the engine only needs to
// know who is acting and with what capability. A missing or unknown role
// falls back to viewer, so an unidentified caller can read but never write.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.GetHeader(headerActor)
		if name == "" {
			name = defaultActor
		}
		role := auth.Role(c.GetHeader(headerRole))
		if !role.IsValid() {
			role = defaultRole
		}
		c.Set("actor", governance.Actor{Name: name, Role: role})
		c.Next()
	}
}

func actorFrom(c *gin.Context) governance.Actor {
	if v, ok := c.Get("actor"); ok {
		if a, ok := v.(governance.Actor); ok {
			return a
		}
	}
	return governance.Actor{Name: defaultActor, Role: defaultRole}
}
