package apps

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"appgen-backend/internal/shared/server/respond"
	"appgen-backend/internal/shared/storage/object"
)

// Handler wires HTTP handlers to the apps service.
type Handler struct {
	Svc   *Service
	Store object.ObjectStore
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, store object.ObjectStore) *Handler {
	return &Handler{Svc: svc, Store: store}
}

// RegisterRoutes attaches app routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/apps", h.createApp)
	rg.GET("/apps/:id", h.getApp)
}

type createAppRequest struct {
	OwnerID     string `json:"ownerId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) createApp(c *gin.Context) {
	var req createAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.OwnerID == "" {
		req.OwnerID = c.GetHeader("X-Owner-Id")
	}

	app, err := h.Svc.Create(c.Request.Context(), req.OwnerID, req.Name, req.Description)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	respond.JSON(c, http.StatusCreated, h.appResponse(app))
}

func (h *Handler) getApp(c *gin.Context) {
	appID := c.Param("id")
	if appID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "app id is required", nil)
		return
	}

	app, err := h.Svc.Get(c.Request.Context(), appID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "app not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch app", nil)
		}
		return
	}
	respond.OK(c, h.appResponse(app))
}

func (h *Handler) appResponse(app App) gin.H {
	resp := gin.H{
		"id":          app.ID,
		"ownerId":     app.OwnerID,
		"name":        app.Name,
		"description": app.Description,
		"createdAt":   app.CreatedAt,
	}
	if app.Concept != nil {
		resp["concept"] = app.Concept
	}
	if app.IconKey != "" {
		resp["iconUrl"] = h.Store.URLFor(app.IconKey)
	}
	screens := app.OrderedScreens()
	if len(screens) > 0 {
		out := make([]gin.H, 0, len(screens))
		for _, screen := range screens {
			out = append(out, gin.H{
				"name": screen.Name,
				"url":  h.Store.URLFor(screen.StorageKey),
			})
		}
		resp["screens"] = out
	}
	if app.CoverKey != "" {
		cover := gin.H{
			"url":     h.Store.URLFor(app.CoverKey),
			"backend": app.CoverBackend,
		}
		if app.CoverCostUSD != nil {
			cover["costUsd"] = *app.CoverCostUSD
		}
		if app.CoverSpeed != "" {
			cover["speedBand"] = app.CoverSpeed
		}
		resp["cover"] = cover
	}
	return resp
}
