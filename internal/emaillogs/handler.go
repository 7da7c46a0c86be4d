package emaillogs

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/pkg/response"
)

// Lister reads the delivery history of a webinar.
type Lister interface {
	ListByWebinar(ctx context.Context, webinarID uuid.UUID) ([]*models.EmailLog, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	logs   Lister
	logger *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(logs Lister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logs: logs, logger: logger}
}

// ListByWebinar handles GET /webinars/:id/emails.
// Mount behind RequireWebinarHost so access is already checked.
func (h *Handler) ListByWebinar(c *gin.Context) {
	webinarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	logs, err := h.logs.ListByWebinar(c.Request.Context(), webinarID)
	if err != nil {
		h.logger.Error("list email logs failed", zap.Error(err), zap.String("webinar_id", webinarID.String()))
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
