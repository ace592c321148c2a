package middleware

import (
	"github.com/labstack/echo/v4"

	"learnhub/internal/domain/entity"
	"learnhub/internal/domain/repository"
	"learnhub/pkg/errors"
	"learnhub/pkg/response"
)

type AdminMiddleware struct {
	userRepo repository.UserRepository
}

func NewAdminMiddleware(userRepo repository.UserRepository) *AdminMiddleware {
	return &AdminMiddleware{
		userRepo: userRepo,
	}
}

// AdminOnly re-reads the caller's role so a demotion takes effect without
// waiting for the token to expire.
func (m *AdminMiddleware) AdminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, ok := c.Get(ContextUserID).(string)
		if !ok || uid == "" {
			return response.Error(c, errors.Authentication(nil))
		}

		user, err := m.userRepo.GetByID(c.Request().Context(), uid)
		if err != nil {
			return response.Error(c, errors.Internal("Failed to verify admin privileges", err))
		}

		if user.Role != entity.RoleAdmin {
			return response.Error(c, errors.Authorization("Admin privileges required", nil))
		}

		return next(c)
	}
}
