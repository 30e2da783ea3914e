package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// healthCheck handles GET /health. A departed participant reports 503 so
// orchestrators can replace it.
func (s *Server) healthCheck(c *gin.Context) {
	state := s.participant.State()

	status := "healthy"
	httpStatus := http.StatusOK
	if state.IsDead {
		status = "departed"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"transport": s.transport,
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	})
}

// getElector handles GET /api/v1/elector
func (s *Server) getElector(c *gin.Context) {
	c.JSON(http.StatusOK, s.participant.State())
}

// depart handles POST /api/v1/elector/depart. It hands leadership off the
// same way a shutdown does.
func (s *Server) depart(c *gin.Context) {
	if s.participant.State().IsDead {
		c.JSON(http.StatusConflict, gin.H{"error": "already departed"})
		return
	}

	if err := s.participant.Close(); err != nil {
		s.log.Warn("departure announcement failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "departed locally but the announcement was not delivered: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "departed",
		"state":   s.participant.State(),
	})
}
