package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"leaderbus/pkg/logger"
)

// LogLevelRequest is the body of PUT /api/v1/log/level.
type LogLevelRequest struct {
	Level string `json:"level" binding:"required"`
}

// getLogLevel handles GET /api/v1/log/level
func (s *Server) getLogLevel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"level": logger.Level()})
}

// setLogLevel handles PUT /api/v1/log/level. The change applies to the
// elector and transports too, since they log through the global level.
func (s *Server) setLogLevel(c *gin.Context) {
	var req LogLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	previous := logger.Level()
	if err := logger.SetLevel(req.Level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.log.Info("log level changed", zap.String("from", previous), zap.String("to", logger.Level()))
	c.JSON(http.StatusOK, gin.H{"level": logger.Level()})
}
