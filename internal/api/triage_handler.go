package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
)

// CycleRunner is the orchestrator's entry point.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*model.CycleReport, error)
}

type TriageHandler struct {
	runner CycleRunner
	log    *zap.Logger
}

func NewTriageHandler(runner CycleRunner, log *zap.Logger) *TriageHandler {
	return &TriageHandler{
		runner: runner,
		log:    log,
	}
}

// RunLatest handles POST /api/mails/latest. No body required; it triggers
// one polling cycle and returns the aggregated report.
func (h *TriageHandler) RunLatest(c *gin.Context) {
	ctx := c.Request.Context()

	report, err := h.runner.RunCycle(ctx)
	if err != nil {
		logger.WithTrace(ctx, h.log).Error("Polling cycle failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to run polling cycle"})
		return
	}

	c.JSON(http.StatusOK, report)
}
