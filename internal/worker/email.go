package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/pkg/mailer"
	"github.com/aura-webinar/admissions/pkg/queue"
)

const dequeueTimeout = 5 * time.Second

// JobQueue is the part of the Redis queue the email worker consumes.
type JobQueue interface {
	Dequeue(ctx context.Context, key string, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, key string, job *queue.Job) error
}

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, m mailer.Message) error
}

// LogWriter records delivery outcomes.
type LogWriter interface {
	Create(ctx context.Context, el *models.EmailLog) error
}

// EmailProcessor delivers queued notification emails and records each
// outcome in email_logs.
type EmailProcessor struct {
	queue  JobQueue
	mail   Mailer
	logs   LogWriter
	logger *zap.Logger
	now    func() time.Time
	wait   func(ctx context.Context, d time.Duration)
}

// NewEmailProcessor creates an email delivery processor.
func NewEmailProcessor(q JobQueue, mail Mailer, logs LogWriter, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		queue:  q,
		mail:   mail,
		logs:   logs,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		wait:   sleepCtx,
	}
}

// sleepCtx pauses for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Process delivers one email job. A failed delivery is logged as failed only
// on the attempt that exhausts the retries.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	sendErr := p.mail.Send(ctx, mailer.Message{
		To:      payload.RecipientEmail,
		Subject: payload.Subject,
		Body:    payload.Body,
	})
	if sendErr != nil && job.Attempt+1 < queue.MaxRetries {
		return sendErr
	}

	el := &models.EmailLog{
		WebinarID:      &payload.WebinarID,
		RegistrationID: &payload.RegistrationID,
		EmailType:      payload.EmailType,
		RecipientEmail: payload.RecipientEmail,
		Subject:        payload.Subject,
		Status:         models.EmailLogStatusSent,
	}
	if sendErr != nil {
		el.Status = models.EmailLogStatusFailed
		el.ErrorMessage = sendErr.Error()
	} else {
		sentAt := p.now()
		el.SentAt = &sentAt
	}
	if err := p.logs.Create(ctx, el); err != nil {
		p.logger.Warn("write email log failed", zap.Error(err), zap.String("job_id", job.ID))
	}
	if sendErr != nil {
		return sendErr
	}
	p.logger.Info("email sent",
		zap.String("job_id", job.ID),
		zap.String("email_type", payload.EmailType),
		zap.String("registration_id", payload.RegistrationID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, queue.QueueEmails, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.wait(ctx, queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, queue.QueueEmails, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.wait(ctx, queue.RetryBackoff)
		}
	}
}
