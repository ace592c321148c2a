package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type HealthHandler struct {
	onlineUsers func() []string
	started     time.Time
}

func NewHealthHandler(onlineUsers func() []string) *HealthHandler {
	return &HealthHandler{
		onlineUsers: onlineUsers,
		started:     time.Now(),
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status": "Server is running",
		"time":   time.Now().Format(time.RFC3339),
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if h.onlineUsers != nil {
		body["connections"] = len(h.onlineUsers())
	}
	return c.JSON(http.StatusOK, body)
}
