package webinars

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/middleware"
	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/pkg/response"
)

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// Store is the persistence the handler needs.
type Store interface {
	Getter
	Create(ctx context.Context, w *models.Webinar) error
	Update(ctx context.Context, w *models.Webinar) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetListing(ctx context.Context, id uuid.UUID) (*Listing, error)
	List(ctx context.Context, f ListFilter) ([]Listing, error)
}

// CreateRequest is the body for POST /webinars.
type CreateRequest struct {
	Title           string `json:"title" binding:"required"`
	Description     string `json:"description"`
	StartsAt        string `json:"starts_at" binding:"required"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1"`
	Capacity        int    `json:"capacity" binding:"required,min=1"`
	Price           string `json:"price"` // decimal, major units; empty or "0" is free
	JoinLink        string `json:"join_link" binding:"omitempty,url"`
	Platform        string `json:"platform"`
}

// UpdateRequest is the body for PATCH /webinars/:id. Price and currency are
// fixed once created so existing orders stay consistent.
type UpdateRequest struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	StartsAt        *string `json:"starts_at"`
	DurationMinutes *int    `json:"duration_minutes" binding:"omitempty,min=1"`
	Capacity        *int    `json:"capacity" binding:"omitempty,min=1"`
	JoinLink        *string `json:"join_link" binding:"omitempty,url"`
	Platform        *string `json:"platform"`
}

// Handler handles webinar HTTP endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a webinar handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger, now: time.Now}
}

// Create handles POST /webinars (admin or host). The caller becomes the host.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, _ := middleware.UserID(c)

	startsAt, err := parseTime(req.StartsAt)
	if err != nil {
		response.BadRequest(c, "invalid starts_at")
		return
	}
	if !startsAt.After(h.now()) {
		response.BadRequest(c, "starts_at must be in the future")
		return
	}
	price, err := ParsePriceMinor(req.Price)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	w := &models.Webinar{
		Title:           req.Title,
		Description:     req.Description,
		StartsAt:        startsAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		Capacity:        req.Capacity,
		PriceMinor:      price,
		Currency:        models.DefaultCurrency,
		HostID:          userID,
		JoinLink:        req.JoinLink,
		Platform:        req.Platform,
	}
	if err := h.store.Create(c.Request.Context(), w); err != nil {
		h.logger.Error("create webinar", zap.Error(err))
		response.Internal(c, "failed to create webinar")
		return
	}
	response.Created(c, w)
}

// GetByID handles GET /webinars/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	l, err := h.store.GetListing(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "webinar not found")
			return
		}
		h.logger.Error("get webinar", zap.Error(err), zap.String("webinar_id", id.String()))
		response.Internal(c, "failed to load webinar")
		return
	}
	response.OK(c, l)
}

// List handles GET /webinars. Anonymous callers and attendees see upcoming
// webinars. Hosts see every webinar they host, past ones included, and admins
// see all. ?mine=1 limits any signed-in caller to webinars they host.
func (h *Handler) List(c *gin.Context) {
	uid, signedIn := middleware.UserID(c)
	now := h.now()
	var f ListFilter
	switch {
	case c.Query("mine") == "1":
		if !signedIn {
			response.Unauthorized(c, "login required for mine=1")
			return
		}
		f.HostID = &uid
	case signedIn && middleware.Role(c) == models.RoleHost:
		f.HostID = &uid
	case signedIn && middleware.Role(c) == models.RoleAdmin:
		// unfiltered
	default:
		f.StartsAfter = &now
	}
	list, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list webinars", zap.Error(err))
		response.Internal(c, "failed to list webinars")
		return
	}
	response.OK(c, list)
}

// Update handles PATCH /webinars/:id. Run behind RequireWebinarHost.
func (h *Handler) Update(c *gin.Context) {
	w, ok := FromContext(c)
	if !ok {
		response.Internal(c, "webinar not loaded")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	updated := *w
	if req.Title != nil {
		updated.Title = *req.Title
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.StartsAt != nil {
		t, err := parseTime(*req.StartsAt)
		if err != nil {
			response.BadRequest(c, "invalid starts_at")
			return
		}
		updated.StartsAt = t.UTC()
	}
	if req.DurationMinutes != nil {
		updated.DurationMinutes = *req.DurationMinutes
	}
	if req.Capacity != nil {
		updated.Capacity = *req.Capacity
	}
	if req.JoinLink != nil {
		updated.JoinLink = *req.JoinLink
	}
	if req.Platform != nil {
		updated.Platform = *req.Platform
	}
	if err := h.store.Update(c.Request.Context(), &updated); err != nil {
		if errors.Is(err, ErrCapacityBelowRegistered) {
			response.Conflict(c, err.Error())
			return
		}
		h.logger.Error("update webinar", zap.Error(err), zap.String("webinar_id", w.ID.String()))
		response.Internal(c, "failed to update webinar")
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /webinars/:id. Run behind RequireWebinarHost.
func (h *Handler) Delete(c *gin.Context) {
	w, ok := FromContext(c)
	if !ok {
		response.Internal(c, "webinar not loaded")
		return
	}
	if err := h.store.Delete(c.Request.Context(), w.ID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(c, "webinar not found")
		case errors.Is(err, ErrHasRegistrations):
			response.Conflict(c, "cancel or refund the webinar's registrations before deleting it")
		default:
			h.logger.Error("delete webinar", zap.Error(err), zap.String("webinar_id", w.ID.String()))
			response.Internal(c, "failed to delete webinar")
		}
		return
	}
	h.logger.Info("webinar deleted", zap.String("webinar_id", w.ID.String()))
	response.NoContent(c)
}
