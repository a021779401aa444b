package middleware

import (
	"net/http"
	"strings"

	"meu_perito_go/services"

	"github.com/labstack/echo/v4"
)

// Headers set by the authenticating proxy in front of the API
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

const actorContextKey = "actor"

// Actor reads the caller identity from the proxy headers. Requests that
// change state must carry an actor id; reads may be anonymous.
func Actor() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := strings.TrimSpace(c.Request().Header.Get(HeaderActorID))
			role := strings.ToLower(strings.TrimSpace(c.Request().Header.Get(HeaderActorRole)))

			if id != "" {
				c.Set(actorContextKey, services.Actor{ID: id, Role: role})
			} else if isMutation(c.Request().Method) {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderActorID+" header")
			}
			return next(c)
		}
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// GetActor returns the actor stored by Actor
func GetActor(c echo.Context) (services.Actor, bool) {
	actor, ok := c.Get(actorContextKey).(services.Actor)
	return actor, ok
}
