package generation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"appgen-backend/internal/apps"
	"appgen-backend/internal/router"
	"appgen-backend/internal/shared/server/middleware"
	"appgen-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the generation service.
type Handler struct {
	Svc  *Service
	Apps apps.Repo
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, appsRepo apps.Repo) *Handler {
	return &Handler{Svc: svc, Apps: appsRepo}
}

// RegisterRoutes attaches generation routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/apps/:id/generate", h.startGeneration)
	rg.POST("/apps/:id/cover", h.createCover)
	rg.GET("/generations/:id", h.getGeneration)
	rg.GET("/generations", h.listGenerations)
}

type startGenerationRequest struct {
	Description        string `json:"description"`
	UseExistingConcept bool   `json:"useExistingConcept"`
	Tier               string `json:"tier"`
}

func (h *Handler) startGeneration(c *gin.Context) {
	appID := c.Param("id")
	if appID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "app id is required", nil)
		return
	}
	var req startGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.Description != "" && req.UseExistingConcept {
		respond.Error(c, http.StatusBadRequest, "validation_error", "provide a description or useExistingConcept, not both", nil)
		return
	}

	app, err := h.Apps.GetByID(c.Request.Context(), appID)
	if err != nil {
		switch {
		case errors.Is(err, apps.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "app not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start generation", nil)
		}
		return
	}

	var input Input
	if req.UseExistingConcept {
		input = ConceptInput{}
	} else {
		description := req.Description
		if description == "" {
			description = app.Description
		}
		input = DescriptionInput{Description: description}
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, err := h.Svc.Start(ctx, app.ID, app.OwnerID, input, router.Tier(req.Tier))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

type createCoverRequest struct {
	Tier    string `json:"tier"`
	Backend string `json:"backend"`
}

func (h *Handler) createCover(c *gin.Context) {
	appID := c.Param("id")
	if appID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "app id is required", nil)
		return
	}
	var req createCoverRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	result, err := h.Svc.CreateCover(ctx, appID, router.Tier(req.Tier), req.Backend)
	if err != nil {
		switch {
		case errors.Is(err, apps.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "app not found", nil)
		case errors.Is(err, router.ErrRouteExhausted):
			respond.Error(c, http.StatusBadGateway, "generation_failed", "all cover backends failed", nil)
		case errors.Is(err, ErrFetchExhausted):
			respond.Error(c, http.StatusBadGateway, "generation_failed", "cover asset download failed", nil)
		default:
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		}
		return
	}
	respond.JSON(c, http.StatusCreated, result)
}

func (h *Handler) getGeneration(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "generation id is required", nil)
		return
	}

	job, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "generation not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch generation", nil)
		}
		return
	}
	respond.OK(c, job)
}

func (h *Handler) listGenerations(c *gin.Context) {
	appID := c.Query("appId")
	if appID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "appId query parameter is required", nil)
		return
	}

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	jobs, err := h.Svc.List(c.Request.Context(), appID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list generations", nil)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}
	respond.OK(c, gin.H{"generations": jobs})
}
