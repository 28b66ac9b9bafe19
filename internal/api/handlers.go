// Package api exposes the core's control surface to the presentation shell:
// bootstrap and sync read models, the consent/retry/reset triggers, and the
// job transition endpoints used by external import runners.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relaychat/appcore/internal/boot"
	"github.com/relaychat/appcore/internal/syncqueue"
	"github.com/relaychat/appcore/pkg/types"
)

// Bootstrapper is the bootstrap-facing contract the handlers need.
type Bootstrapper interface {
	Status() types.BootstrapStatus
	Continue() error
	Retry() error
	Reset(ctx context.Context) error
}

// SyncController is the queue-facing contract the handlers need.
type SyncController interface {
	Snapshot() types.SyncSnapshot
	Enqueue(jobType types.JobType)
	Start(ctx context.Context, jobType types.JobType) error
	Progress(jobType types.JobType, current, total int64)
	Complete(ctx context.Context, jobType types.JobType) error
	Fail(ctx context.Context, jobType types.JobType, message string) error
	Reset(ctx context.Context, force bool) error
}

// Handler handles control API requests.
type Handler struct {
	bootstrap Bootstrapper
	sync      SyncController
	version   string
	startedAt time.Time
}

// NewHandler creates a new API handler.
func NewHandler(bootstrap Bootstrapper, sync SyncController, version string) *Handler {
	return &Handler{
		bootstrap: bootstrap,
		sync:      sync,
		version:   version,
		startedAt: time.Now(),
	}
}

// SetupRoutes configures the control API routes. The metrics handler may be
// nil when metrics are disabled.
func SetupRoutes(router *gin.Engine, handler *Handler, authMiddleware gin.HandlerFunc, metricsHandler http.Handler) {
	api := router.Group("/api/v1")
	if authMiddleware != nil {
		api.Use(authMiddleware)
	}
	{
		api.GET("/bootstrap", handler.GetBootstrap)
		api.POST("/bootstrap/continue", handler.ContinueBootstrap)
		api.POST("/bootstrap/retry", handler.RetryBootstrap)
		api.POST("/bootstrap/reset", handler.ResetBootstrap)

		api.GET("/sync", handler.GetSync)
		api.POST("/sync/reset", handler.ResetSync)
		api.POST("/sync/:job_type/queue", handler.QueueJob)
		api.POST("/sync/:job_type/start", handler.StartJob)
		api.POST("/sync/:job_type/progress", handler.ReportProgress)
		api.POST("/sync/:job_type/complete", handler.CompleteJob)
		api.POST("/sync/:job_type/error", handler.FailJob)
	}

	// Health and metrics stay unauthenticated for local probes.
	router.GET("/health", handler.HealthCheck)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}
}

// GetBootstrap returns the bootstrap read model.
func (h *Handler) GetBootstrap(c *gin.Context) {
	c.JSON(http.StatusOK, h.bootstrap.Status())
}

// ContinueBootstrap forwards the user's consent acknowledgement.
func (h *Handler) ContinueBootstrap(c *gin.Context) {
	if err := h.bootstrap.Continue(); err != nil {
		c.JSON(http.StatusConflict, types.ErrorResponse{
			Error:   "not awaiting consent",
			Message: err.Error(),
			Code:    409,
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "continuing"})
}

// RetryBootstrap re-enters the failed phase after a recoverable error.
func (h *Handler) RetryBootstrap(c *gin.Context) {
	if err := h.bootstrap.Retry(); err != nil {
		c.JSON(http.StatusConflict, types.ErrorResponse{
			Error:   "retry unavailable",
			Message: err.Error(),
			Code:    409,
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "retrying"})
}

// ResetBootstrap is the recovery hook: wipe local data and boot again.
func (h *Handler) ResetBootstrap(c *gin.Context) {
	if err := h.bootstrap.Reset(c.Request.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, boot.ErrNotInErrorPhase) {
			status = http.StatusConflict
		}
		c.JSON(status, types.ErrorResponse{
			Error:   "reset failed",
			Message: err.Error(),
			Code:    status,
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "resetting"})
}

// GetSync returns the sync queue snapshot.
func (h *Handler) GetSync(c *gin.Context) {
	c.JSON(http.StatusOK, h.sync.Snapshot())
}

// ResetSync clears job records; refused while jobs run unless forced.
func (h *Handler) ResetSync(c *gin.Context) {
	var req types.SyncResetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Error:   "invalid request",
				Message: err.Error(),
				Code:    400,
			})
			return
		}
	}

	if err := h.sync.Reset(c.Request.Context(), req.Force); err != nil {
		var inProgress *syncqueue.JobInProgressError
		if errors.As(err, &inProgress) {
			c.JSON(http.StatusConflict, types.ErrorResponse{
				Error:   "jobs in progress",
				Message: err.Error(),
				Code:    409,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "reset failed",
			Message: err.Error(),
			Code:    500,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// jobType parses and validates the :job_type parameter.
func (h *Handler) jobType(c *gin.Context) (types.JobType, bool) {
	jobType, ok := types.ValidJobType(c.Param("job_type"))
	if !ok {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "unknown job type",
			Message: c.Param("job_type"),
			Code:    400,
		})
		return "", false
	}
	return jobType, true
}

// QueueJob creates a queued record for the job type.
func (h *Handler) QueueJob(c *gin.Context) {
	jobType, ok := h.jobType(c)
	if !ok {
		return
	}
	h.sync.Enqueue(jobType)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "job_type": jobType})
}

// StartJob transitions the job to running; 409 when already running.
func (h *Handler) StartJob(c *gin.Context) {
	jobType, ok := h.jobType(c)
	if !ok {
		return
	}

	if err := h.sync.Start(c.Request.Context(), jobType); err != nil {
		var already *syncqueue.AlreadyRunningError
		if errors.As(err, &already) {
			c.JSON(http.StatusConflict, types.ErrorResponse{
				Error:   "already running",
				Message: err.Error(),
				Code:    409,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "failed to start job",
			Message: err.Error(),
			Code:    500,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "running", "job_type": jobType})
}

// ReportProgress updates the running job's progress.
func (h *Handler) ReportProgress(c *gin.Context) {
	jobType, ok := h.jobType(c)
	if !ok {
		return
	}

	var req types.ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: err.Error(),
			Code:    400,
		})
		return
	}

	h.sync.Progress(jobType, req.Current, req.Total)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CompleteJob transitions the running job to complete.
func (h *Handler) CompleteJob(c *gin.Context) {
	jobType, ok := h.jobType(c)
	if !ok {
		return
	}

	if err := h.sync.Complete(c.Request.Context(), jobType); err != nil {
		c.JSON(http.StatusConflict, types.ErrorResponse{
			Error:   "job not running",
			Message: err.Error(),
			Code:    409,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "complete", "job_type": jobType})
}

// FailJob records the running job's failure. Other job types are untouched.
func (h *Handler) FailJob(c *gin.Context) {
	jobType, ok := h.jobType(c)
	if !ok {
		return
	}

	var req types.JobErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: err.Error(),
			Code:    400,
		})
		return
	}

	if err := h.sync.Fail(c.Request.Context(), jobType, req.Message); err != nil {
		c.JSON(http.StatusConflict, types.ErrorResponse{
			Error:   "job not running",
			Message: err.Error(),
			Code:    409,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "error", "job_type": jobType})
}

// HealthCheck provides daemon liveness and the current boot phase.
func (h *Handler) HealthCheck(c *gin.Context) {
	status := h.bootstrap.Status()

	response := types.HealthResponse{
		Status:    "healthy",
		Phase:     status.Phase,
		Timestamp: time.Now(),
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
	}
	if status.Phase == types.PhaseError {
		response.Status = "degraded"
	}

	c.JSON(http.StatusOK, response)
}
