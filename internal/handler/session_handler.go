package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/beacons-backend-go/internal/middleware"
	"github.com/jengzang/beacons-backend-go/internal/service"
	"github.com/jengzang/beacons-backend-go/pkg/response"
)

// SessionHandler handles HTTP requests for dashboard sessions
type SessionHandler struct {
	service   *service.DashboardService
	tokens    *middleware.Tokens
	limiter   *middleware.RateLimiter
	companyID int64
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(svc *service.DashboardService, tokens *middleware.Tokens, limiter *middleware.RateLimiter, companyID int64) *SessionHandler {
	return &SessionHandler{service: svc, tokens: tokens, limiter: limiter, companyID: companyID}
}

// CreateSession handles POST /api/v1/session
func (h *SessionHandler) CreateSession(c *gin.Context) {
	token, sid, err := h.tokens.Issue(h.companyID)
	if err != nil {
		response.InternalError(c, "Failed to create session", err)
		return
	}

	if _, err := h.service.Session(c.Request.Context(), sid, h.companyID); err != nil {
		response.FromError(c, "Failed to open session", err)
		return
	}

	c.JSON(http.StatusCreated, response.Response{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"token":      token,
			"session_id": sid,
		},
	})
}

// DeleteSession handles DELETE /api/v1/session
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	sid := c.GetString(middleware.SessionKey)
	if err := h.service.EndSession(sid); err != nil {
		response.FromError(c, "Failed to close session", err)
		return
	}
	if h.limiter != nil {
		h.limiter.Forget(sid)
	}
	response.Success(c, gin.H{"session_id": sid})
}
