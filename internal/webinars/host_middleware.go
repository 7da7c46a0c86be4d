package webinars

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-webinar/admissions/internal/middleware"
	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/pkg/response"
)

// ContextWebinar is the gin context key for the webinar loaded by RequireWebinarHost.
const ContextWebinar = "webinar"

// Getter loads a webinar by id.
type Getter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
}

// RequireWebinarHost allows the webinar's host and admins. Call after JWT.
func RequireWebinarHost(webinars Getter) gin.HandlerFunc {
	return func(c *gin.Context) {
		webinarID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid webinar id")
			c.Abort()
			return
		}
		w, err := webinars.GetByID(c.Request.Context(), webinarID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				response.NotFound(c, "webinar not found")
			} else {
				response.Internal(c, "failed to load webinar")
			}
			c.Abort()
			return
		}
		userID, _ := middleware.UserID(c)
		if middleware.Role(c) != models.RoleAdmin && w.HostID != userID {
			response.Forbidden(c, "only the host can access this webinar")
			c.Abort()
			return
		}
		c.Set(ContextWebinar, w)
		c.Next()
	}
}

// FromContext returns the webinar set by RequireWebinarHost.
func FromContext(c *gin.Context) (*models.Webinar, bool) {
	v, ok := c.Get(ContextWebinar)
	if !ok {
		return nil, false
	}
	w, ok := v.(*models.Webinar)
	return w, ok
}
