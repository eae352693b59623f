package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/beacons-backend-go/internal/middleware"
	"github.com/jengzang/beacons-backend-go/internal/service"
	"github.com/jengzang/beacons-backend-go/pkg/response"
)

// EventHandler handles HTTP requests for the event catalog
type EventHandler struct {
	service *service.DashboardService
}

// NewEventHandler creates a new event handler
func NewEventHandler(svc *service.DashboardService) *EventHandler {
	return &EventHandler{service: svc}
}

// ListEvents handles GET /api/v1/events
func (h *EventHandler) ListEvents(c *gin.Context) {
	events, err := h.service.ListEvents(c.Request.Context(), c.GetInt64(middleware.CompanyKey))
	if err != nil {
		response.FromError(c, "Failed to list events", err)
		return
	}

	response.Success(c, gin.H{
		"events": events,
		"total":  len(events),
	})
}
