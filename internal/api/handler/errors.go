package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/linkweaver/internal/api/middleware"
	"github.com/timmy/linkweaver/internal/keypool"
	"github.com/timmy/linkweaver/internal/logger"
	"github.com/timmy/linkweaver/internal/repository"
	"github.com/timmy/linkweaver/internal/service"
)

// GetLogger returns the request-scoped logger.
func GetLogger(c *gin.Context) *logger.Logger {
	return middleware.GetLogger(c)
}

// respondError maps err to a status code. Client errors carry their message;
// server errors get a generic one and the detail goes to the log.
func respondError(c *gin.Context, err error) {
	var coded *service.Error
	isCoded := errors.As(err, &coded)
	switch {
	case isCoded && coded.Code == service.CodeInvalidInput:
		c.JSON(http.StatusBadRequest, gin.H{"error": coded.Message, "code": coded.Code})
		return
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, keypool.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	case errors.Is(err, keypool.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "key already exists"})
		return
	case errors.Is(err, keypool.ErrProbeFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_ = c.Error(err)
	GetLogger(c).WithError(err).Error("Request failed")
	// The request ID lets a caller point at the matching log line.
	requestID := logger.GetRequestID(c.Request.Context())
	if isCoded {
		c.JSON(http.StatusInternalServerError, gin.H{"error": coded.Message, "code": coded.Code, "request_id": requestID})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "request_id": requestID})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
