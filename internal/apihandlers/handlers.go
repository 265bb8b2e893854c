package apihandlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
)

// Lifecycle is the batch job API one use case exposes over HTTP.
type Lifecycle interface {
	Start(ctx context.Context, payload models.Payload, jobName string) (*models.JobRecord, error)
	CheckStatus(ctx context.Context, jobName string) (models.JobStatus, error)
	FetchResults(ctx context.Context, jobName string) (*models.BatchResults, error)
}

// Resolver returns the lifecycle for a use case kind.
type Resolver func(kind string) (Lifecycle, error)

type APIHandler struct {
	resolve Resolver
}

func NewAPIHandler(resolve Resolver) *APIHandler {
	return &APIHandler{resolve: resolve}
}

// RegisterRoutes mounts the job routes under /api/v1 and the health check.
func (h *APIHandler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/:kind/jobs/:name")
		jobs.POST("", h.StartJobHandler)
		jobs.GET("/status", h.JobStatusHandler)
		jobs.POST("/results", h.FetchResultsHandler)
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// StartJobRequest carries either bare texts or caller-keyed items.
type StartJobRequest struct {
	Texts []string          `json:"texts"`
	Items map[string]string `json:"items"`
}

type jobResponse struct {
	JobName   string           `json:"job_name"`
	RemoteID  string           `json:"remote_id"`
	Status    models.JobStatus `json:"status"`
	CustomIDs []string         `json:"custom_ids,omitempty"`
}

type resultsResponse struct {
	JobName string            `json:"job_name"`
	Results map[string]any    `json:"results"`
	Errors  map[string]string `json:"errors"`
}

func (h *APIHandler) lifecycle(c *gin.Context) (Lifecycle, bool) {
	kind := c.Param("kind")
	if kind != models.KindDetect && kind != models.KindCategorize {
		NotFound(c, fmt.Sprintf("unknown kind %q", kind))
		return nil, false
	}
	lc, err := h.resolve(kind)
	if err != nil {
		Unavailable(c, err.Error())
		return nil, false
	}
	return lc, true
}

func (h *APIHandler) StartJobHandler(c *gin.Context) {
	lc, ok := h.lifecycle(c)
	if !ok {
		return
	}
	var req StartJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	payload := models.Payload{Texts: req.Texts, Items: req.Items}

	rec, err := lc.Start(c.Request.Context(), payload, c.Param("name"))
	if err != nil {
		respondError(c, "StartJobHandler", err)
		return
	}
	c.JSON(http.StatusAccepted, jobResponse{
		JobName:   rec.JobName,
		RemoteID:  rec.RemoteID,
		Status:    rec.Status,
		CustomIDs: rec.CustomIDs,
	})
}

func (h *APIHandler) JobStatusHandler(c *gin.Context) {
	lc, ok := h.lifecycle(c)
	if !ok {
		return
	}
	status, err := lc.CheckStatus(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, "JobStatusHandler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (h *APIHandler) FetchResultsHandler(c *gin.Context) {
	lc, ok := h.lifecycle(c)
	if !ok {
		return
	}
	results, err := lc.FetchResults(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, "FetchResultsHandler", err)
		return
	}
	c.JSON(http.StatusOK, resultsResponse{
		JobName: results.JobName,
		Results: results.Values(),
		Errors:  results.Failures(),
	})
}

// respondError maps lifecycle errors onto HTTP statuses.
func respondError(c *gin.Context, op string, err error) {
	var (
		failed     *models.BatchFailedError
		submission *models.SubmissionError
		mismatch   *models.LabelMismatchError
	)
	switch {
	case errors.Is(err, models.ErrInvalidJobName),
		errors.Is(err, models.ErrEmptyPayload),
		errors.Is(err, models.ErrInvalidPayload):
		BadRequest(c, err.Error())
	case errors.As(err, &failed):
		JSONError(c, http.StatusConflict, "batch_failed", err.Error())
	case errors.Is(err, models.ErrLockHeld), errors.As(err, &mismatch):
		Conflict(c, err.Error())
	case errors.Is(err, models.ErrProviderDisabled):
		Unavailable(c, err.Error())
	case errors.As(err, &submission):
		log.WithError(err).Errorf("%s: submission failed", op)
		JSONError(c, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		log.WithError(err).Errorf("%s failed", op)
		Internal(c, fmt.Sprintf("%s: %v", op, err))
	}
}
