package auth

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"inboxsync/internal/domain"
)

const identityKey = "identity"

// Gate is the echo middleware that guards every source and message route.
type Gate struct {
	resolver Resolver
}

func NewGate(r Resolver) *Gate {
	return &Gate{resolver: r}
}

func (g *Gate) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Authorization required"})
			}

			id, err := g.resolver.Resolve(c.Request().Context(), token)
			if err != nil {
				if !errors.Is(err, ErrUnauthorized) {
					log.Printf("[ERROR] resolve token: %v", err)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			c.Set(identityKey, id)
			return next(c)
		}
	}
}

// IdentityFrom returns the identity the gate stored on c.
func IdentityFrom(c echo.Context) (domain.Identity, bool) {
	id, ok := c.Get(identityKey).(domain.Identity)
	return id, ok
}
