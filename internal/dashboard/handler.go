package dashboard

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/middleware"
	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/pkg/response"
)

const (
	recentWindow    = 7 * 24 * time.Hour
	recentLimit     = 10
	upcomingLimit   = 5
	revenueCurrency = models.DefaultCurrency
)

// AttendedWebinar is a webinar the caller has a paid seat in.
type AttendedWebinar struct {
	WebinarID       uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	HostName        string    `json:"host_name"`
	PriceMinor      int64     `json:"price_minor"`
	Currency        string    `json:"currency"`
	RegisteredAt    time.Time `json:"registered_at"`
}

// HostWebinar is one of the caller's hosted webinars with its paid seats.
type HostWebinar struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	StartsAt        time.Time  `json:"starts_at"`
	Capacity        int        `json:"capacity"`
	RegisteredCount int        `json:"registered_count"`
	PriceMinor      int64      `json:"price_minor"`
	Currency        string     `json:"currency"`
	RevenueMinor    int64      `json:"revenue_minor"`
	Attendees       []Attendee `json:"attendees"`
}

// Attendee is a paid attendee of a hosted webinar.
type Attendee struct {
	WebinarID    uuid.UUID  `json:"-"`
	UserID       *uuid.UUID `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
}

// Totals are the platform-wide counters shown to admins.
type Totals struct {
	Webinars      int   `json:"total_webinars"`
	Users         int   `json:"total_users"`
	Registrations int   `json:"total_registrations"`
	RevenueMinor  int64 `json:"total_revenue_minor"`
}

// Activity is one recent paid registration.
type Activity struct {
	Name         string    `json:"user"`
	Guest        bool      `json:"guest"`
	Webinar      string    `json:"webinar"`
	RegisteredAt time.Time `json:"registered_at"`
	AmountMinor  int64     `json:"amount_minor"`
}

// UpcomingWebinar is a soon-starting webinar in the admin view.
type UpcomingWebinar struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	StartsAt        time.Time `json:"starts_at"`
	RegisteredCount int       `json:"registered_count"`
	Capacity        int       `json:"capacity"`
	HostName        string    `json:"host_name"`
}

// Store is what the dashboard reads.
type Store interface {
	AttendeeWebinars(ctx context.Context, userID uuid.UUID) ([]AttendedWebinar, error)
	HostWebinars(ctx context.Context, hostID uuid.UUID) ([]HostWebinar, error)
	HostAttendees(ctx context.Context, hostID uuid.UUID) ([]Attendee, error)
	Totals(ctx context.Context) (Totals, error)
	RecentActivity(ctx context.Context, since time.Time, limit int) ([]Activity, error)
	Upcoming(ctx context.Context, now time.Time, limit int) ([]UpcomingWebinar, error)
}

// AttendeeView is the dashboard of an attendee.
type AttendeeView struct {
	Role               models.Role       `json:"role"`
	Upcoming           []AttendedWebinar `json:"upcoming_webinars"`
	Past               []AttendedWebinar `json:"past_webinars"`
	TotalRegistrations int               `json:"total_registrations"`
}

// HostView is the dashboard of a host.
type HostView struct {
	Role              models.Role   `json:"role"`
	Webinars          []HostWebinar `json:"webinars"`
	TotalWebinars     int           `json:"total_webinars"`
	TotalAttendees    int           `json:"total_attendees"`
	TotalRevenueMinor int64         `json:"total_revenue_minor"`
	Currency          string        `json:"currency"`
}

// AdminView is the platform dashboard.
type AdminView struct {
	Role models.Role `json:"role"`
	Totals
	Currency       string            `json:"currency"`
	RecentActivity []Activity        `json:"recent_activity"`
	Upcoming       []UpcomingWebinar `json:"upcoming_webinars"`
}

// Handler serves GET /dashboard.
type Handler struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a dashboard handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger, now: time.Now}
}

// Get handles GET /dashboard. The payload depends on the caller's role.
func (h *Handler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "login required")
		return
	}
	ctx := c.Request.Context()

	var (
		view any
		err  error
	)
	switch role := middleware.Role(c); role {
	case models.RoleAdmin:
		view, err = h.admin(ctx)
	case models.RoleHost:
		view, err = h.host(ctx, userID)
	case models.RoleAttendee:
		view, err = h.attendee(ctx, userID)
	default:
		response.Forbidden(c, "unknown role")
		return
	}
	if err != nil {
		h.logger.Error("load dashboard", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to load dashboard")
		return
	}
	response.OK(c, view)
}

func (h *Handler) attendee(ctx context.Context, userID uuid.UUID) (*AttendeeView, error) {
	list, err := h.store.AttendeeWebinars(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := h.now()
	v := &AttendeeView{
		Role:               models.RoleAttendee,
		Upcoming:           []AttendedWebinar{},
		Past:               []AttendedWebinar{},
		TotalRegistrations: len(list),
	}
	for _, w := range list {
		if w.StartsAt.After(now) {
			v.Upcoming = append(v.Upcoming, w)
		} else {
			v.Past = append(v.Past, w)
		}
	}
	return v, nil
}

func (h *Handler) host(ctx context.Context, hostID uuid.UUID) (*HostView, error) {
	webinars, err := h.store.HostWebinars(ctx, hostID)
	if err != nil {
		return nil, err
	}
	attendees, err := h.store.HostAttendees(ctx, hostID)
	if err != nil {
		return nil, err
	}
	byWebinar := make(map[uuid.UUID][]Attendee, len(webinars))
	for _, a := range attendees {
		byWebinar[a.WebinarID] = append(byWebinar[a.WebinarID], a)
	}

	v := &HostView{Role: models.RoleHost, Webinars: webinars, TotalWebinars: len(webinars), Currency: revenueCurrency}
	if v.Webinars == nil {
		v.Webinars = []HostWebinar{}
	}
	for i := range v.Webinars {
		w := &v.Webinars[i]
		w.Attendees = byWebinar[w.ID]
		if w.Attendees == nil {
			w.Attendees = []Attendee{}
		}
		w.RevenueMinor = int64(w.RegisteredCount) * w.PriceMinor
		v.TotalAttendees += w.RegisteredCount
		v.TotalRevenueMinor += w.RevenueMinor
	}
	return v, nil
}

func (h *Handler) admin(ctx context.Context) (*AdminView, error) {
	totals, err := h.store.Totals(ctx)
	if err != nil {
		return nil, err
	}
	now := h.now()
	recent, err := h.store.RecentActivity(ctx, now.Add(-recentWindow), recentLimit)
	if err != nil {
		return nil, err
	}
	upcoming, err := h.store.Upcoming(ctx, now, upcomingLimit)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []Activity{}
	}
	if upcoming == nil {
		upcoming = []UpcomingWebinar{}
	}
	return &AdminView{
		Role:           models.RoleAdmin,
		Totals:         totals,
		Currency:       revenueCurrency,
		RecentActivity: recent,
		Upcoming:       upcoming,
	}, nil
}
