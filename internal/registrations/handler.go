package registrations

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/middleware"
	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/internal/webinars"
	"github.com/aura-webinar/admissions/pkg/response"
)

// RegisterRequest is the body for POST /webinars/register. Name, email and
// phone are only for callers without a token.
type RegisterRequest struct {
	WebinarID string `json:"webinar_id" binding:"required,uuid"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// VerifyPaymentRequest is the body for POST /verify-payment.
type VerifyPaymentRequest struct {
	OrderID        string `json:"razorpay_order_id" binding:"required"`
	PaymentID      string `json:"razorpay_payment_id" binding:"required"`
	Signature      string `json:"razorpay_signature" binding:"required"`
	RegistrationID string `json:"registration_id" binding:"required,uuid"`
}

// StatusResponse is the public view of a registration.
type StatusResponse struct {
	RegistrationID uuid.UUID            `json:"registration_id"`
	WebinarTitle   string               `json:"webinar_title"`
	StartsAt       time.Time            `json:"starts_at"`
	PaymentStatus  models.PaymentStatus `json:"payment_status"`
	JoinLink       string               `json:"join_link,omitempty"`
	Platform       string               `json:"platform,omitempty"`
}

// ExportStore uploads attendee exports and signs download links.
type ExportStore interface {
	UploadExport(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	PresignExport(ctx context.Context, key string) (string, error)
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	controller *Controller
	reconciler *Reconciler
	reader     Reader
	catalog    Catalog
	exports    ExportStore
	logger     *zap.Logger
	now        func() time.Time
}

// NewHandler creates a registrations handler. exports may be nil, which
// disables attendee export.
func NewHandler(controller *Controller, reconciler *Reconciler, reader Reader, catalog Catalog, exports ExportStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		controller: controller,
		reconciler: reconciler,
		reader:     reader,
		catalog:    catalog,
		exports:    exports,
		logger:     logger,
		now:        time.Now,
	}
}

func callerOf(c *gin.Context) *uuid.UUID {
	if id, ok := middleware.UserID(c); ok {
		return &id
	}
	return nil
}

// Register handles POST /webinars/register (optional auth).
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	webinarID, _ := uuid.Parse(req.WebinarID)
	in := RegisterInput{WebinarID: webinarID, Caller: callerOf(c)}
	if req.Name != "" || req.Email != "" || req.Phone != "" {
		in.Guest = &GuestDetails{Name: req.Name, Email: req.Email, Phone: req.Phone}
	}
	res, err := h.controller.Register(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, res)
}

// VerifyPayment handles POST /verify-payment (optional auth).
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	regID, _ := uuid.Parse(req.RegistrationID)
	reg, err := h.reconciler.VerifyPayment(c.Request.Context(), VerifyInput{
		RegistrationID: regID,
		OrderID:        req.OrderID,
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
	}, callerOf(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, reg)
}

// Cancel handles POST /registrations/:id/cancel (auth).
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	caller, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	res, err := h.reconciler.Cancel(c.Request.Context(), id, caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, res)
}

// Status handles GET /registrations/:id/status (public). The join link is
// only revealed once the registration is paid.
func (h *Handler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	reg, err := h.reader.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	w, err := h.catalog.GetByID(c.Request.Context(), reg.WebinarID)
	if err != nil {
		if errors.Is(err, webinars.ErrNotFound) {
			response.NotFound(c, "webinar not found")
			return
		}
		h.writeError(c, err)
		return
	}
	out := StatusResponse{
		RegistrationID: reg.ID,
		WebinarTitle:   w.Title,
		StartsAt:       w.StartsAt,
		PaymentStatus:  reg.PaymentStatus,
	}
	if reg.PaymentStatus == models.PaymentSuccess {
		out.JoinLink = w.JoinLink
		out.Platform = w.Platform
	}
	response.OK(c, out)
}

// Mine handles GET /me/registrations (auth).
func (h *Handler) Mine(c *gin.Context) {
	caller, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.reader.ListByUser(c.Request.Context(), caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, list)
}

// Attendees handles GET /webinars/:id/attendees. Run behind webinars.RequireWebinarHost.
func (h *Handler) Attendees(c *gin.Context) {
	w, ok := webinars.FromContext(c)
	if !ok {
		response.Internal(c, "webinar not loaded")
		return
	}
	list, err := h.reader.ListAttendees(c.Request.Context(), w.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"webinar_id": w.ID, "count": len(list), "attendees": list})
}

// writeError maps pipeline errors to HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, ErrCapacityExceeded):
		status, code = http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, ErrHoldExpired):
		status, code = http.StatusConflict, "hold_expired"
	case errors.Is(err, ErrConcurrencyConflict):
		status, code = http.StatusConflict, "concurrent_update"
	case errors.Is(err, ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, ErrAlreadyStarted):
		status, code = http.StatusBadRequest, "already_started"
	case errors.Is(err, ErrDeadlinePassed):
		status, code = http.StatusBadRequest, "deadline_passed"
	case errors.Is(err, ErrInvalidSignature):
		status, code = http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, ErrGateway):
		status, code = http.StatusBadGateway, "gateway_error"
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Error(c, status, code, "internal error")
		return
	}
	if status == http.StatusBadGateway {
		h.logger.Warn("payment gateway failure", zap.Error(err))
		response.Error(c, status, code, "payment gateway is unavailable, try again")
		return
	}
	response.Error(c, status, code, err.Error())
}
