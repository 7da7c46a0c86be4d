package registrations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/middleware"
	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/internal/payments"
	"github.com/aura-webinar/admissions/internal/webinars"
	"github.com/aura-webinar/admissions/pkg/response"
)

type memExports struct {
	key  string
	body string
	err  error
}

func (e *memExports) UploadExport(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	if e.err != nil {
		return e.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	e.key, e.body = key, string(b)
	return nil
}

func (e *memExports) PresignExport(_ context.Context, key string) (string, error) {
	return "https://exports.example.com/" + key + "?sig=1", nil
}

func newTestRouter(f *fixture, exports ExportStore, user *uuid.UUID, role models.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(f.controller, f.reconciler, f.store, memCatalog{store: f.store}, exports, nil)
	h.now = func() time.Time { return testNow }

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(middleware.ContextUserID, *user)
			c.Set(middleware.ContextUserRole, string(role))
		}
		c.Next()
	})
	r.POST("/webinars/register", h.Register)
	r.POST("/verify-payment", h.VerifyPayment)
	r.POST("/registrations/:id/cancel", h.Cancel)
	r.GET("/registrations/:id/status", h.Status)
	r.GET("/me/registrations", h.Mine)
	host := r.Group("/webinars/:id", webinars.RequireWebinarHost(memCatalog{store: f.store}))
	host.GET("/attendees", h.Attendees)
	host.POST("/attendees/export", h.ExportAttendees)
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Body {
	t.Helper()
	var b response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b
}

func TestHandler_RegisterGuest(t *testing.T) {
	web := paidWebinar(2)
	f := newFixture(Options{PublicKeyID: "rzp_key"}, web)
	f.gateway.On("CreateOrder", mock.Anything, mock.Anything).
		Return(&payments.Order{ID: "order_h", AmountMinor: 50000, Currency: "INR"}, nil)
	r := newTestRouter(f, nil, nil, "")

	w := doJSON(r, http.MethodPost, "/webinars/register", map[string]string{
		"webinar_id": web.ID.String(),
		"name":       "Guest",
		"email":      "guest@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"order_h"`)
	assert.Contains(t, w.Body.String(), `"key_id":"rzp_key"`)

	w = doJSON(r, http.MethodPost, "/webinars/register", map[string]string{
		"webinar_id": web.ID.String(),
		"name":       "Guest",
		"email":      "guest@example.com",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decode(t, w).Code)

	w = doJSON(r, http.MethodPost, "/webinars/register", map[string]string{"webinar_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_VerifyPaymentInvalidSignature(t *testing.T) {
	web := paidWebinar(2)
	f := newFixture(Options{}, web)
	reg := seed(f, web, models.GuestAttendee(models.Guest{Email: "g@example.com", Name: "G"}), models.PaymentPending, "order_1", "")
	f.gateway.On("VerifySignature", mock.Anything, mock.Anything, mock.Anything).Return(false)
	r := newTestRouter(f, nil, nil, "")

	w := doJSON(r, http.MethodPost, "/verify-payment", map[string]string{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "bad",
		"registration_id":     reg.ID.String(),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_signature", decode(t, w).Code)

	w = doJSON(r, http.MethodPost, "/verify-payment", map[string]string{"registration_id": reg.ID.String()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_StatusRevealsLinkOnlyWhenPaid(t *testing.T) {
	web := paidWebinar(2)
	f := newFixture(Options{}, web)
	pending := seed(f, web, models.GuestAttendee(models.Guest{Email: "p@example.com"}), models.PaymentPending, "o", "")
	paid := seed(f, web, models.GuestAttendee(models.Guest{Email: "s@example.com"}), models.PaymentSuccess, "o2", "p2")
	r := newTestRouter(f, nil, nil, "")

	w := doJSON(r, http.MethodGet, "/registrations/"+pending.ID.String()+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), web.JoinLink)

	w = doJSON(r, http.MethodGet, "/registrations/"+paid.ID.String()+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), web.JoinLink)

	w = doJSON(r, http.MethodGet, "/registrations/"+uuid.NewString()+"/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_CancelAndMine(t *testing.T) {
	web := freeWebinar(2)
	f := newFixture(Options{}, web)
	user := uuid.New()
	reg := seed(f, web, models.UserAttendee(user), models.PaymentSuccess, "", "")
	r := newTestRouter(f, nil, &user, models.RoleAttendee)

	w := doJSON(r, http.MethodGet, "/me/registrations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), reg.ID.String())

	w = doJSON(r, http.MethodPost, "/registrations/"+reg.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":true`)
}

func TestHandler_AttendeesAndExport(t *testing.T) {
	web := paidWebinar(5)
	host := uuid.New()
	web.HostID = host
	f := newFixture(Options{}, web)
	seed(f, web, models.GuestAttendee(models.Guest{Email: "a@example.com", Name: "Ann", Phone: "+91 98"}), models.PaymentSuccess, "o", "p")
	seed(f, web, models.GuestAttendee(models.Guest{Email: "b@example.com", Name: "Ben"}), models.PaymentPending, "o2", "")

	exports := &memExports{}
	r := newTestRouter(f, exports, &host, models.RoleHost)

	w := doJSON(r, http.MethodGet, "/webinars/"+web.ID.String()+"/attendees", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "a@example.com")
	assert.NotContains(t, w.Body.String(), "b@example.com")

	w = doJSON(r, http.MethodPost, "/webinars/"+web.ID.String()+"/attendees/export", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, exports.key, "exports/"+web.ID.String()+"/attendees-")
	assert.Contains(t, exports.body, "registration_id,name,email,phone,guest,registered_at")
	assert.Contains(t, exports.body, "Ann,a@example.com,+91 98,yes")
	assert.Contains(t, w.Body.String(), "sig=1")

	stranger := uuid.New()
	r = newTestRouter(f, exports, &stranger, models.RoleHost)
	w = doJSON(r, http.MethodGet, "/webinars/"+web.ID.String()+"/attendees", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandler_ExportDisabled(t *testing.T) {
	web := paidWebinar(5)
	admin := uuid.New()
	f := newFixture(Options{}, web)
	r := newTestRouter(f, nil, &admin, models.RoleAdmin)

	w := doJSON(r, http.MethodPost, "/webinars/"+web.ID.String()+"/attendees/export", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: registration", ErrNotFound), http.StatusNotFound, "not_found"},
		{ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{ErrConflict, http.StatusConflict, "conflict"},
		{ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
		{ErrAlreadyStarted, http.StatusBadRequest, "already_started"},
		{ErrDeadlinePassed, http.StatusBadRequest, "deadline_passed"},
		{ErrInvalidSignature, http.StatusBadRequest, "invalid_signature"},
		{fmt.Errorf("%w: %w", ErrGateway, payments.ErrGatewayUnavailable), http.StatusBadGateway, "gateway_error"},
		{ErrConcurrencyConflict, http.StatusConflict, "concurrent_update"},
		{fmt.Errorf("%w: payment pay_1 was refunded (rfnd_1)", ErrHoldExpired), http.StatusConflict, "hold_expired"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	gin.SetMode(gin.TestMode)
	h := &Handler{logger: zap.NewNop()}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		h.writeError(c, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.Equal(t, tc.code, decode(t, w).Code, tc.err.Error())
	}
}
