package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/beacons-backend-go/internal/middleware"
	"github.com/jengzang/beacons-backend-go/internal/panel"
	"github.com/jengzang/beacons-backend-go/internal/service"
	"github.com/jengzang/beacons-backend-go/pkg/response"
)

// PanelHandler handles HTTP requests for the region, proximity and table panels
type PanelHandler struct {
	service *service.DashboardService
}

// NewPanelHandler creates a new panel handler
func NewPanelHandler(svc *service.DashboardService) *PanelHandler {
	return &PanelHandler{service: svc}
}

type selectEventRequest struct {
	Event string `json:"event" binding:"required"`
}

type clickPointRequest struct {
	Series string `json:"series" binding:"required"`
}

type selectBeaconRequest struct {
	Beacon string `json:"beacon" binding:"required"`
}

type selectRowRequest struct {
	Bucket string `json:"bucket"`
}

func (h *PanelHandler) dashboard(c *gin.Context) (*panel.Dashboard, bool) {
	d, err := h.service.Session(c.Request.Context(), c.GetString(middleware.SessionKey), c.GetInt64(middleware.CompanyKey))
	if err != nil {
		response.FromError(c, "Failed to open session", err)
		return nil, false
	}
	return d, true
}

func fail(c *gin.Context, message string, err error) {
	if errors.Is(err, panel.ErrBusy) || errors.Is(err, panel.ErrNotReady) {
		response.Error(c, http.StatusConflict, message, err)
		return
	}
	response.FromError(c, message, err)
}

// GetRegion handles GET /api/v1/panels/region
func (h *PanelHandler) GetRegion(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	view, err := d.Region.View(c.Request.Context())
	if err != nil {
		fail(c, "Failed to render region panel", err)
		return
	}
	response.Success(c, view)
}

// SelectEvent handles POST /api/v1/panels/region/event
func (h *PanelHandler) SelectEvent(c *gin.Context) {
	var req selectEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	if err := d.Region.SelectEvent(c.Request.Context(), req.Event); err != nil {
		fail(c, "Failed to load event", err)
		return
	}
	h.GetRegion(c)
}

// ClickPoint handles POST /api/v1/panels/region/point
func (h *PanelHandler) ClickPoint(c *gin.Context) {
	var req clickPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	if err := d.Region.ClickPoint(c.Request.Context(), req.Series); err != nil {
		fail(c, "Failed to select region", err)
		return
	}
	h.GetTable(c)
}

// MakeFakeData handles POST /api/v1/panels/region/fake-data
func (h *PanelHandler) MakeFakeData(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	if err := d.Region.MakeFakeData(c.Request.Context()); err != nil {
		fail(c, "Failed to start fake data generation", err)
		return
	}
	view, err := d.Region.View(c.Request.Context())
	if err != nil {
		fail(c, "Failed to render region panel", err)
		return
	}
	c.JSON(http.StatusAccepted, response.Response{Code: 0, Message: "accepted", Data: view})
}

// CancelFakeData handles DELETE /api/v1/panels/region/fake-data
func (h *PanelHandler) CancelFakeData(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	running, err := d.Region.CancelFakeData(c.Request.Context())
	if err != nil {
		fail(c, "Failed to cancel fake data generation", err)
		return
	}
	response.Success(c, gin.H{"cancelled": running})
}

// ClearAllData handles DELETE /api/v1/panels/region/data
func (h *PanelHandler) ClearAllData(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	if err := d.Region.ClearAllData(c.Request.Context()); err != nil {
		fail(c, "Failed to clear data", err)
		return
	}
	h.GetRegion(c)
}

// GetProximity handles GET /api/v1/panels/proximity
func (h *PanelHandler) GetProximity(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	view, err := d.Proximity.View(c.Request.Context())
	if err != nil {
		fail(c, "Failed to render proximity panel", err)
		return
	}
	response.Success(c, view)
}

// SelectBeacon handles POST /api/v1/panels/proximity/beacon
func (h *PanelHandler) SelectBeacon(c *gin.Context) {
	var req selectBeaconRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	if err := d.Proximity.SelectBeacon(c.Request.Context(), req.Beacon); err != nil {
		fail(c, "Failed to select beacon", err)
		return
	}
	h.GetProximity(c)
}

// GetTable handles GET /api/v1/panels/table
func (h *PanelHandler) GetTable(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	view, err := d.Table.View(c.Request.Context())
	if err != nil {
		fail(c, "Failed to render table panel", err)
		return
	}
	response.Success(c, view)
}

// SelectRow handles POST /api/v1/panels/table/row
func (h *PanelHandler) SelectRow(c *gin.Context) {
	var req selectRowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	if err := d.Table.SelectRow(c.Request.Context(), req.Bucket); err != nil {
		fail(c, "Failed to select row", err)
		return
	}
	h.GetTable(c)
}
