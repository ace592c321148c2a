package middleware

import (
	"github.com/labstack/echo/v4"

	"learnhub/internal/infrastructure/auth"
	"learnhub/pkg/errors"
	"learnhub/pkg/response"
)

const ContextUserID = "uid"

type AuthMiddleware struct {
	authenticator *auth.Authenticator
}

func NewAuthMiddleware(authenticator *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
	}
}

// Authenticate requires a bearer token and puts the caller's id on the
// echo context.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			return response.Error(c, errors.Authentication(auth.ErrMissingToken))
		}

		identity, err := m.authenticator.Authenticate(c.Request().Context(), header)
		if err != nil {
			return response.Error(c, err)
		}

		c.Set(ContextUserID, identity.UserID)

		return next(c)
	}
}
