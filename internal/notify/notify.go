// Package notify turns registration milestones into outbound email jobs.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/auth"
	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/pkg/queue"
)

// ReminderKind selects which advance reminder to send.
type ReminderKind string

const (
	Reminder24h ReminderKind = "24h"
	Reminder1h  ReminderKind = "1h"
)

// ErrNoRecipient is returned when a registration has no reachable address.
var ErrNoRecipient = errors.New("registration has no recipient address")

// Notice is what every message is about: one registration for one webinar.
type Notice struct {
	Registration *models.Registration
	Webinar      *models.Webinar
}

// Sender delivers attendee notifications.
type Sender interface {
	SendConfirmation(ctx context.Context, n Notice) error
	SendReminder(ctx context.Context, n Notice, kind ReminderKind) error
	SendStartingNotice(ctx context.Context, n Notice) error
}

// Directory resolves platform users to contact details.
type Directory interface {
	Contact(ctx context.Context, id uuid.UUID) (*auth.Contact, error)
}

// Enqueuer accepts email jobs.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// QueueSender renders plain-text messages and hands them to the email worker.
type QueueSender struct {
	jobs   Enqueuer
	users  Directory
	logger *zap.Logger
}

// NewQueueSender creates a sender backed by the email job queue.
func NewQueueSender(jobs Enqueuer, users Directory, logger *zap.Logger) *QueueSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueSender{jobs: jobs, users: users, logger: logger}
}

var _ Sender = (*QueueSender)(nil)

// SendConfirmation enqueues the registration confirmation.
func (s *QueueSender) SendConfirmation(ctx context.Context, n Notice) error {
	return s.send(ctx, n, confirmation)
}

// SendReminder enqueues the 24h or 1h reminder.
func (s *QueueSender) SendReminder(ctx context.Context, n Notice, kind ReminderKind) error {
	switch kind {
	case Reminder24h:
		return s.send(ctx, n, reminder24h)
	case Reminder1h:
		return s.send(ctx, n, reminder1h)
	default:
		return fmt.Errorf("unknown reminder kind %q", kind)
	}
}

// SendStartingNotice enqueues the "starting now" message.
func (s *QueueSender) SendStartingNotice(ctx context.Context, n Notice) error {
	return s.send(ctx, n, starting)
}

func (s *QueueSender) send(ctx context.Context, n Notice, tmpl template) error {
	if n.Registration == nil || n.Webinar == nil {
		return errors.New("notice requires registration and webinar")
	}
	to, err := s.recipient(ctx, n.Registration)
	if err != nil {
		return err
	}
	msg := tmpl.render(to.name, n.Webinar)
	payload := queue.EmailPayload{
		EmailType:      tmpl.emailType,
		WebinarID:      n.Webinar.ID,
		RegistrationID: n.Registration.ID,
		RecipientEmail: to.email,
		RecipientName:  to.name,
		Subject:        msg.Subject,
		Body:           msg.Body,
	}
	if err := s.jobs.EnqueueEmail(ctx, payload); err != nil {
		s.logger.Warn("enqueue notification failed",
			zap.String("email_type", tmpl.emailType),
			zap.String("registration_id", n.Registration.ID.String()),
			zap.Error(err))
		return fmt.Errorf("enqueue %s: %w", tmpl.emailType, err)
	}
	return nil
}

type recipient struct {
	email string
	name  string
}

func (s *QueueSender) recipient(ctx context.Context, reg *models.Registration) (recipient, error) {
	if g, ok := reg.Attendee.Guest(); ok {
		if g.Email == "" {
			return recipient{}, ErrNoRecipient
		}
		return recipient{email: g.Email, name: g.Name}, nil
	}
	id, ok := reg.Attendee.UserID()
	if !ok {
		return recipient{}, ErrNoRecipient
	}
	c, err := s.users.Contact(ctx, id)
	if err != nil {
		return recipient{}, fmt.Errorf("resolve user %s: %w", id, err)
	}
	if c.Email == "" {
		return recipient{}, ErrNoRecipient
	}
	return recipient{email: c.Email, name: c.FullName}, nil
}
