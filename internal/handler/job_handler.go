package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/xxxsen/apisync/internal/model"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
	"github.com/xxxsen/apisync/internal/pkg/response"
	"github.com/xxxsen/apisync/internal/service"
)

type JobAdmin interface {
	Import(ctx context.Context, catalog *service.Catalog) (*service.ImportResult, error)
	Save(ctx context.Context, job *model.Job) (*model.Job, error)
	Delete(ctx context.Context, jobID string) error
	List(ctx context.Context) ([]model.JobStatus, error)
	Get(ctx context.Context, jobID string) (*model.JobStatus, error)
	Purge(ctx context.Context, jobID string) (int, error)
	TriggerToken(ctx context.Context, jobID string, ttl time.Duration) (string, error)
}

type JobHandler struct {
	jobs JobAdmin
	gate JobTrigger
}

func NewJobHandler(jobs JobAdmin, gate JobTrigger) *JobHandler {
	return &JobHandler{jobs: jobs, gate: gate}
}

func (h *JobHandler) List(c *gin.Context) {
	list, err := h.jobs.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, list)
}

func (h *JobHandler) Get(c *gin.Context) {
	status, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, status)
}

func (h *JobHandler) Save(c *gin.Context) {
	var job model.Job
	if err := c.ShouldBindJSON(&job); err != nil {
		handleError(c, fmt.Errorf("%w: %v", appErr.ErrInvalid, err))
		return
	}
	job.ID = c.Param("id")
	saved, err := h.jobs.Save(c.Request.Context(), &job)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, saved)
}

func (h *JobHandler) Delete(c *gin.Context) {
	if err := h.jobs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *JobHandler) Import(c *gin.Context) {
	catalog, err := service.ParseCatalog(c.Request.Body)
	if err != nil {
		handleError(c, err)
		return
	}
	result, err := h.jobs.Import(c.Request.Context(), catalog)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// Run syncs the job now and returns its report.
func (h *JobHandler) Run(c *gin.Context) {
	report, err := h.gate.Trigger(c.Request.Context(), c.Param("id"))
	if err != nil && report == nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *JobHandler) Purge(c *gin.Context) {
	deleted, err := h.jobs.Purge(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": deleted})
}

// Token issues a trigger token; ttl is given in seconds, 0 never expires.
func (h *JobHandler) Token(c *gin.Context) {
	ttl, err := cast.ToInt64E(c.DefaultQuery("ttl", "0"))
	if err != nil || ttl < 0 {
		handleError(c, fmt.Errorf("ttl: %w", appErr.ErrInvalid))
		return
	}
	token, err := h.jobs.TriggerToken(c.Request.Context(), c.Param("id"), time.Duration(ttl)*time.Second)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"token": token, "path": "/api/v1/trigger/" + token})
}
