package handler

import (
	"github.com/labstack/echo/v4"

	"learnhub/internal/adapter/api/middleware"
	"learnhub/internal/domain/entity"
	"learnhub/internal/usecase"
	"learnhub/pkg/response"
	"learnhub/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type startConversationRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
}

type createGroupRequest struct {
	Title          string   `json:"title" validate:"required,max=120"`
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,max=100,dive,required"`
}

type uploadURLRequest struct {
	FileName string `json:"file_name" validate:"required,max=255"`
	MimeType string `json:"mime_type" validate:"required"`
}

type markReadResponse struct {
	ConversationID string `json:"conversationId"`
	Count          int    `json:"count"`
}

// StartConversation finds or creates the individual conversation with the
// recipient. 201 when it was created, 200 when it already existed.
func (h *ChatHandler) StartConversation(c echo.Context) error {
	var req startConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get(middleware.ContextUserID).(string)

	conv, created, err := h.chatUseCase.StartConversation(c.Request().Context(), userID, req.RecipientID)
	if err != nil {
		return response.Error(c, err)
	}

	if created {
		return response.Created(c, conv)
	}
	return response.Success(c, conv)
}

func (h *ChatHandler) CreateGroup(c echo.Context) error {
	var req createGroupRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get(middleware.ContextUserID).(string)

	conv, err := h.chatUseCase.CreateGroup(c.Request().Context(), userID, usecase.CreateGroupInput{
		Title:          req.Title,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, conv)
}

func (h *ChatHandler) ListConversations(c echo.Context) error {
	userID := c.Get(middleware.ContextUserID).(string)

	conversations, err := h.chatUseCase.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}
	if conversations == nil {
		conversations = []*entity.ConversationSummary{}
	}

	return response.Success(c, conversations)
}

func (h *ChatHandler) GetConversation(c echo.Context) error {
	userID := c.Get(middleware.ContextUserID).(string)

	conv, err := h.chatUseCase.GetConversation(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}

// ListMessages pages newest-first. Pass the returned nextCursor back as
// ?cursor= for older messages.
func (h *ChatHandler) ListMessages(c echo.Context) error {
	userID := c.Get(middleware.ContextUserID).(string)

	params, err := utils.GetCursorParams(c)
	if err != nil {
		return response.Error(c, err)
	}

	page, err := h.chatUseCase.ListMessages(c.Request().Context(), userID, c.Param("id"), params.Cursor, params.Limit)
	if err != nil {
		return response.Error(c, err)
	}

	messages := page.Messages
	if messages == nil {
		messages = []*entity.Message{}
	}
	return response.Cursor(c, messages, page.NextCursor)
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	userID := c.Get(middleware.ContextUserID).(string)
	conversationID := c.Param("id")

	count, err := h.chatUseCase.MarkRead(c.Request().Context(), userID, conversationID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, markReadResponse{ConversationID: conversationID, Count: count})
}

func (h *ChatHandler) RequestUploadURL(c echo.Context) error {
	var req uploadURLRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get(middleware.ContextUserID).(string)

	ticket, err := h.chatUseCase.RequestUploadURL(c.Request().Context(), userID, req.FileName, req.MimeType)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, ticket)
}

func (h *ChatHandler) OnlineUsers(c echo.Context) error {
	return response.Success(c, map[string]interface{}{
		"users": h.chatUseCase.OnlineUsers(),
	})
}
