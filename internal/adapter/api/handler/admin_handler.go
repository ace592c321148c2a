package handler

import (
	"github.com/labstack/echo/v4"

	"learnhub/internal/adapter/api/middleware"
	"learnhub/internal/domain/entity"
	"learnhub/internal/usecase"
	"learnhub/pkg/response"
)

// AdminHandler serves the moderation endpoints.
type AdminHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewAdminHandler(chatUseCase *usecase.ChatUseCase) *AdminHandler {
	return &AdminHandler{
		chatUseCase: chatUseCase,
	}
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active archived deleted"`
}

func (h *AdminHandler) UpdateConversationStatus(c echo.Context) error {
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	adminID := c.Get(middleware.ContextUserID).(string)

	conv, err := h.chatUseCase.UpdateConversationStatus(c.Request().Context(), adminID, c.Param("id"), entity.ConversationStatus(req.Status))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}
