package sec

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Realm is advertised in the WWW-Authenticate challenge.
const Realm = "permits"

// Middleware returns echo middleware that rejects unauthenticated requests
// with 401 before the handler runs. Every failure, including a malformed
// header, produces the same challenge. The principal is attached to the
// request context on success.
func (g *Gate) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			principal, err := g.Authenticate(req.Context(), req)
			if err != nil {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="`+Realm+`"`)
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized").SetInternal(err)
			}
			c.SetRequest(req.WithContext(SetPrincipal(req.Context(), principal)))
			return next(c)
		}
	}
}
