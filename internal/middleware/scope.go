package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
	"github.com/noah-isme/institute-backoffice-api/pkg/response"
)

// ContextScopeKey is the gin context key storing the resolved visibility scope.
const ContextScopeKey = "visibilityScope"

// ScopeResolver turns claims into a visibility scope.
type ScopeResolver interface {
	Resolve(ctx context.Context, actor *models.JWTClaims) (visibility.Scope, error)
}

// Scope resolves the actor's visibility once per request. It must run after JWT.
func Scope(resolver ScopeResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		scope, err := resolver.Resolve(c.Request.Context(), claims)
		if errors.Is(err, visibility.ErrInactive) {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "account is inactive"))
			c.Abort()
			return
		}
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve access scope"))
			c.Abort()
			return
		}
		c.Set(ContextScopeKey, scope)
		c.Next()
	}
}

// ScopeFromContext returns the resolved scope. The zero scope sees nothing.
func ScopeFromContext(c *gin.Context) (visibility.Scope, bool) {
	value, exists := c.Get(ContextScopeKey)
	if !exists {
		return visibility.Scope{}, false
	}
	scope, ok := value.(visibility.Scope)
	return scope, ok
}
