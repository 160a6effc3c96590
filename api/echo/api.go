package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"go.homestash.io/api/middleware"
)

// API holds the non-webhook routes the server exposes.
type API struct {
	authn *middleware.Authenticator
}

// NewAPI initializes the API.
func NewAPI(authn *middleware.Authenticator) *API {
	return &API{authn: authn}
}

// RegisterRoutes registers the health and session routes.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", a.HealthHandler)

	authed := e.Group("/api", a.authn.Middleware())
	authed.GET("/me", a.MeHandler)
}

// HealthHandler reports liveness.
func (a *API) HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// MeHandler returns the synced local user for the calling session.
func (a *API) MeHandler(c echo.Context) error {
	ref, ok := middleware.UserFromContext(c)
	if !ok {
		return c.NoContent(http.StatusUnauthorized)
	}
	return c.JSON(http.StatusOK, ref)
}
