package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/admissions/internal/auth"
	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/pkg/queue"
)

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Contact(ctx context.Context, id uuid.UUID) (*auth.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Contact), args.Error(1)
}

func testWebinar() *models.Webinar {
	return &models.Webinar{
		ID:              uuid.New(),
		Title:           "Go Concurrency",
		StartsAt:        time.Date(2026, 11, 2, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		JoinLink:        "https://meet.example.com/go",
		Platform:        "zoom",
	}
}

func TestQueueSender_GuestConfirmation(t *testing.T) {
	jobs := new(MockEnqueuer)
	users := new(MockDirectory)
	s := NewQueueSender(jobs, users, nil)

	w := testWebinar()
	reg := &models.Registration{
		ID:       uuid.New(),
		Attendee: models.GuestAttendee(models.Guest{Email: "guest@example.com", Name: "Asha"}),
	}

	jobs.On("EnqueueEmail", mock.Anything, mock.MatchedBy(func(p queue.EmailPayload) bool {
		return p.EmailType == models.EmailTypeRegistrationConfirmation &&
			p.RecipientEmail == "guest@example.com" &&
			p.Subject == "Registration Confirmed: Go Concurrency" &&
			p.RegistrationID == reg.ID &&
			p.WebinarID == w.ID
	})).Return(nil).Once()

	require.NoError(t, s.SendConfirmation(context.Background(), Notice{Registration: reg, Webinar: w}))
	jobs.AssertExpectations(t)
	users.AssertNotCalled(t, "Contact", mock.Anything, mock.Anything)
}

func TestQueueSender_UserReminderResolvesContact(t *testing.T) {
	jobs := new(MockEnqueuer)
	users := new(MockDirectory)
	s := NewQueueSender(jobs, users, nil)

	uid := uuid.New()
	w := testWebinar()
	reg := &models.Registration{ID: uuid.New(), Attendee: models.UserAttendee(uid)}

	users.On("Contact", mock.Anything, uid).Return(&auth.Contact{UserID: uid, Email: "user@example.com", FullName: "Ravi"}, nil)
	var got queue.EmailPayload
	jobs.On("EnqueueEmail", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(1).(queue.EmailPayload)
	}).Return(nil)

	require.NoError(t, s.SendReminder(context.Background(), Notice{Registration: reg, Webinar: w}, Reminder1h))
	assert.Equal(t, "user@example.com", got.RecipientEmail)
	assert.Equal(t, "Starting Soon: Go Concurrency in 1 hour!", got.Subject)
	assert.Contains(t, got.Body, "Hi Ravi,")
	assert.Contains(t, got.Body, "https://meet.example.com/go")
}

func TestQueueSender_Subjects(t *testing.T) {
	w := testWebinar()
	assert.Equal(t, "Reminder: Go Concurrency starts tomorrow!", reminder24h.render("", w).Subject)
	assert.Equal(t, "Join Now: Go Concurrency is starting!", starting.render("", w).Subject)
	assert.Contains(t, starting.render("", w).Body, "Hi there,")
}

func TestQueueSender_Errors(t *testing.T) {
	jobs := new(MockEnqueuer)
	users := new(MockDirectory)
	s := NewQueueSender(jobs, users, nil)
	w := testWebinar()

	uid := uuid.New()
	users.On("Contact", mock.Anything, uid).Return(nil, auth.ErrUserNotFound)
	err := s.SendStartingNotice(context.Background(), Notice{
		Registration: &models.Registration{ID: uuid.New(), Attendee: models.UserAttendee(uid)},
		Webinar:      w,
	})
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	err = s.SendReminder(context.Background(), Notice{Registration: &models.Registration{}, Webinar: w}, Reminder24h)
	assert.ErrorIs(t, err, ErrNoRecipient)

	guest := &models.Registration{ID: uuid.New(), Attendee: models.GuestAttendee(models.Guest{Email: "g@example.com", Name: "G"})}
	jobs.On("EnqueueEmail", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	err = s.SendConfirmation(context.Background(), Notice{Registration: guest, Webinar: w})
	assert.ErrorContains(t, err, "redis down")

	err = s.SendReminder(context.Background(), Notice{Registration: guest, Webinar: w}, ReminderKind("2h"))
	assert.Error(t, err)
}
