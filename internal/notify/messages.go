package notify

import (
	"fmt"
	"strings"

	"github.com/aura-webinar/admissions/internal/models"
)

// Message is a rendered plain-text email.
type Message struct {
	Subject string
	Body    string
}

type template struct {
	emailType string
	subject   string
	lead      string
}

var (
	confirmation = template{
		emailType: models.EmailTypeRegistrationConfirmation,
		subject:   "Registration Confirmed: %s",
		lead:      "Your registration is confirmed.",
	}
	reminder24h = template{
		emailType: models.EmailTypeReminder24h,
		subject:   "Reminder: %s starts tomorrow!",
		lead:      "This is a reminder that your webinar starts tomorrow.",
	}
	reminder1h = template{
		emailType: models.EmailTypeReminder1h,
		subject:   "Starting Soon: %s in 1 hour!",
		lead:      "Your webinar starts in about an hour.",
	}
	starting = template{
		emailType: models.EmailTypeStarting,
		subject:   "Join Now: %s is starting!",
		lead:      "Your webinar is starting now.",
	}
)

const timeLayout = "Mon, 02 Jan 2006 15:04 MST"

func (t template) render(name string, w *models.Webinar) Message {
	var b strings.Builder
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n%s\n\n", name, t.lead)
	fmt.Fprintf(&b, "Webinar: %s\n", w.Title)
	fmt.Fprintf(&b, "Starts:  %s\n", w.StartsAt.UTC().Format(timeLayout))
	if w.DurationMinutes > 0 {
		fmt.Fprintf(&b, "Length:  %d minutes\n", w.DurationMinutes)
	}
	if w.JoinLink != "" {
		fmt.Fprintf(&b, "Join:    %s\n", w.JoinLink)
		if w.Platform != "" {
			fmt.Fprintf(&b, "Platform: %s\n", w.Platform)
		}
	}
	b.WriteString("\nSee you there!\n")
	return Message{Subject: fmt.Sprintf(t.subject, w.Title), Body: b.String()}
}
