package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/apisync/internal/metrics"
	"github.com/xxxsen/apisync/internal/model"
	"github.com/xxxsen/apisync/internal/pkg/response"
)

const (
	triggerSuccess = "success"
	triggerFailed  = "failed"
)

type TokenResolver interface {
	ResolveTrigger(ctx context.Context, token string) (string, error)
}

type JobTrigger interface {
	Trigger(ctx context.Context, jobID string) (*model.RunReport, error)
}

// TriggerHandler starts a single job on behalf of an external caller. The
// answer is always HTTP 200 with a JSON string body of "success" or "failed".
type TriggerHandler struct {
	tokens TokenResolver
	gate   JobTrigger
}

func NewTriggerHandler(tokens TokenResolver, gate JobTrigger) *TriggerHandler {
	return &TriggerHandler{tokens: tokens, gate: gate}
}

func (h *TriggerHandler) Trigger(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logutil.GetLogger(ctx)
	jobID, err := h.tokens.ResolveTrigger(ctx, c.Param("token"))
	if err != nil {
		logger.Warn("trigger token rejected", zap.String("ip", c.ClientIP()), zap.Error(err))
		h.respond(c, triggerFailed)
		return
	}
	report, err := h.gate.Trigger(ctx, jobID)
	if err != nil {
		logger.Error("triggered job failed", zap.String("job", jobID), zap.Error(err))
		h.respond(c, triggerFailed)
		return
	}
	logger.Info("triggered job finished", zap.String("job", jobID), zap.String("status", report.Status))
	h.respond(c, triggerSuccess)
}

// Rejected answers requests held back by the rate limiter.
func (h *TriggerHandler) Rejected(c *gin.Context) {
	h.respond(c, triggerFailed)
}

func (h *TriggerHandler) respond(c *gin.Context, result string) {
	metrics.TriggerRequests.WithLabelValues(result).Inc()
	response.Result(c, result)
}
