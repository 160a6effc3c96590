// Package middleware carries the echo middleware that turns a verified
// session token into a provisioned local user on the request context.
package middleware

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"go.homestash.io/api/domain"
	"go.homestash.io/api/errors"
	"go.homestash.io/api/log"
)

// userContextKey is the echo context key the resolved user ref is
// stored under.
const userContextKey = "homestash.user"

// UserEnsurer resolves or provisions the local user for an
// authenticated external id. Implemented by identity.Syncer.
type UserEnsurer interface {
	Ensure(ctx context.Context, externalID string, claims map[string]any) (domain.Ref, error)
}

// Authenticator validates session tokens and syncs the local user row
// before the handler runs.
type Authenticator struct {
	signingKey []byte
	ensurer    UserEnsurer
	logger     log.Logger
}

// NewAuthenticator creates an Authenticator. signingKey is the HMAC
// secret session tokens are signed with.
func NewAuthenticator(signingKey []byte, ensurer UserEnsurer, logger log.Logger) *Authenticator {
	return &Authenticator{signingKey: signingKey, ensurer: ensurer, logger: logger}
}

// Middleware returns the echo middleware. On success the local user ref
// is available via UserFromContext; every failure maps to the stable
// {code, message} response shape.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			tokenValue, err := bearerToken(c)
			if err != nil {
				return c.JSON(errors.StatusOf(err), errors.ResponseFor(err))
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenValue, claims, func(*jwt.Token) (interface{}, error) {
				return a.signingKey, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				se := errors.NewInvalidToken("invalid or expired session token")
				return c.JSON(se.Status, se)
			}

			externalID, err := claims.GetSubject()
			if err != nil || externalID == "" {
				se := errors.NewInvalidToken("session token carries no subject")
				return c.JSON(se.Status, se)
			}

			ref, err := a.ensurer.Ensure(ctx, externalID, claims)
			if err != nil {
				if _, typed := errors.AsSyncError(err); !typed {
					a.logger.Error(ctx, "user sync failed", err, map[string]interface{}{
						"external_id": externalID,
					})
				}
				return c.JSON(errors.StatusOf(err), errors.ResponseFor(err))
			}

			c.Set(userContextKey, ref)
			return next(c)
		}
	}
}

// bearerToken extracts the raw token from the Authorization header.
func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.NewInvalidToken("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.NewInvalidToken("invalid authorization header format: expected Bearer token")
	}
	return parts[1], nil
}

// UserFromContext retrieves the synced user ref stored by Middleware.
func UserFromContext(c echo.Context) (domain.Ref, bool) {
	ref, ok := c.Get(userContextKey).(domain.Ref)
	return ref, ok
}
