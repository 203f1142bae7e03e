package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/restobook/sumup-sync/internal/api/middleware"
)

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Message string `json:"message"`
}

// ErrorResponse is the envelope for requests rejected before a sync run
// starts. Completed runs report partial failure inside their own body.
type ErrorResponse struct {
	Error         ErrorInfo `json:"error"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// RespondOK sends a 200 OK response with the given body
func RespondOK(c *gin.Context, body interface{}) {
	c.JSON(http.StatusOK, body)
}

// RespondWithError sends a JSON error envelope with the given status
func RespondWithError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:         ErrorInfo{Message: message},
		CorrelationID: middleware.GetCorrelationID(c),
	})
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, message)
}

// RespondForbidden sends a 403 Forbidden response with an error
func RespondForbidden(c *gin.Context, message string) {
	if message == "" {
		message = "Forbidden"
	}
	RespondWithError(c, http.StatusForbidden, message)
}

// RespondNotFound sends a 404 Not Found response with an error
func RespondNotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondWithError(c, http.StatusNotFound, message)
}

// RespondInternalError sends a 500 Internal Server Error response with an error
func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "An internal server error occurred")
}
