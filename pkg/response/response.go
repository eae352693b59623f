package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/beacons-backend-go/internal/models"
)

// Response represents a standard API response
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error sends an error response; err is attached to the gin context for the request log
func Error(c *gin.Context, code int, message string, err error) {
	resp := Response{
		Code:    code,
		Message: message,
	}
	if err != nil {
		_ = c.Error(err)
		resp.Error = err.Error()
	}
	c.JSON(code, resp)
}

// BadRequest sends a 400 bad request response
func BadRequest(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}

// NotFound sends a 404 not found response
func NotFound(c *gin.Context, message string, err error) {
	Error(c, http.StatusNotFound, message, err)
}

// InternalError sends a 500 internal server error response
func InternalError(c *gin.Context, message string, err error) {
	Error(c, http.StatusInternalServerError, message, err)
}

// StatusOf maps a domain error to its HTTP status
func StatusOf(err error) int {
	var storeErr *models.StoreError
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmptyEvent), errors.Is(err, models.ErrMalformedRow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrCoordination):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &storeErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromError sends err with the status StatusOf maps it to
func FromError(c *gin.Context, message string, err error) {
	Error(c, StatusOf(err), message, err)
}
