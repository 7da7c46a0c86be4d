package emaillogs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/aura-webinar/admissions/internal/models"
)

type MockLister struct {
	mock.Mock
}

func (m *MockLister) ListByWebinar(ctx context.Context, webinarID uuid.UUID) ([]*models.EmailLog, error) {
	args := m.Called(ctx, webinarID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.EmailLog), args.Error(1)
}

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/webinars/:id/emails", h.ListByWebinar)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListByWebinar(t *testing.T) {
	id := uuid.New()
	logs := new(MockLister)
	logs.On("ListByWebinar", mock.Anything, id).Return([]*models.EmailLog{
		{ID: uuid.New(), EmailType: models.EmailTypeReminder24h, RecipientEmail: "a@example.com", Status: models.EmailLogStatusSent},
	}, nil)

	w := serve(NewHandler(logs, nil), "/webinars/"+id.String()+"/emails")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reminder_24h")
}

func TestListByWebinar_Errors(t *testing.T) {
	logs := new(MockLister)
	w := serve(NewHandler(logs, nil), "/webinars/nope/emails")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	id := uuid.New()
	logs.On("ListByWebinar", mock.Anything, id).Return(nil, errors.New("db down"))
	w = serve(NewHandler(logs, nil), "/webinars/"+id.String()+"/emails")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
