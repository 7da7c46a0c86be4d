package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the dashboard aggregates. Only success registrations count.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a dashboard repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// AttendeeWebinars returns the webinars userID has paid registrations for.
func (r *Repository) AttendeeWebinars(ctx context.Context, userID uuid.UUID) ([]AttendedWebinar, error) {
	const q = `SELECT w.id, w.title, w.starts_at, w.duration_minutes, COALESCE(u.full_name, ''),
		w.price_minor, w.currency, r.registered_at
		FROM registrations r
		JOIN webinars w ON w.id = r.webinar_id
		LEFT JOIN users u ON u.id = w.host_id
		WHERE r.user_id = $1 AND r.payment_status = 'success'
		ORDER BY w.starts_at`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("attendee webinars: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AttendedWebinar, error) {
		var a AttendedWebinar
		err := row.Scan(&a.WebinarID, &a.Title, &a.StartsAt, &a.DurationMinutes, &a.HostName,
			&a.PriceMinor, &a.Currency, &a.RegisteredAt)
		return a, err
	})
}

// HostWebinars returns every webinar hostID hosts with its paid seat count.
func (r *Repository) HostWebinars(ctx context.Context, hostID uuid.UUID) ([]HostWebinar, error) {
	const q = `SELECT w.id, w.title, w.starts_at, w.capacity, w.price_minor, w.currency,
		(SELECT COUNT(*) FROM registrations r WHERE r.webinar_id = w.id AND r.payment_status = 'success')
		FROM webinars w
		WHERE w.host_id = $1
		ORDER BY w.starts_at`
	rows, err := r.pool.Query(ctx, q, hostID)
	if err != nil {
		return nil, fmt.Errorf("host webinars: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (HostWebinar, error) {
		var h HostWebinar
		err := row.Scan(&h.ID, &h.Title, &h.StartsAt, &h.Capacity, &h.PriceMinor, &h.Currency, &h.RegisteredCount)
		return h, err
	})
}

// HostAttendees returns the paid attendees of all webinars hostID hosts.
func (r *Repository) HostAttendees(ctx context.Context, hostID uuid.UUID) ([]Attendee, error) {
	const q = `SELECT r.webinar_id, r.user_id,
		COALESCE(u.full_name, r.guest_name, ''), COALESCE(u.email, r.guest_email, ''),
		COALESCE(r.guest_phone, ''), r.registered_at
		FROM registrations r
		JOIN webinars w ON w.id = r.webinar_id
		LEFT JOIN users u ON u.id = r.user_id
		WHERE w.host_id = $1 AND r.payment_status = 'success'
		ORDER BY r.registered_at`
	rows, err := r.pool.Query(ctx, q, hostID)
	if err != nil {
		return nil, fmt.Errorf("host attendees: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Attendee, error) {
		var a Attendee
		err := row.Scan(&a.WebinarID, &a.UserID, &a.Name, &a.Email, &a.Phone, &a.RegisteredAt)
		return a, err
	})
}

// Totals returns platform-wide counts and paid revenue.
func (r *Repository) Totals(ctx context.Context) (Totals, error) {
	const q = `SELECT
		(SELECT COUNT(*) FROM webinars),
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM registrations WHERE payment_status = 'success'),
		(SELECT COALESCE(SUM(w.price_minor), 0) FROM registrations r
			JOIN webinars w ON w.id = r.webinar_id WHERE r.payment_status = 'success')`
	var t Totals
	if err := r.pool.QueryRow(ctx, q).Scan(&t.Webinars, &t.Users, &t.Registrations, &t.RevenueMinor); err != nil {
		return Totals{}, fmt.Errorf("dashboard totals: %w", err)
	}
	return t, nil
}

// RecentActivity returns up to limit paid registrations made since since, newest first.
func (r *Repository) RecentActivity(ctx context.Context, since time.Time, limit int) ([]Activity, error) {
	const q = `SELECT COALESCE(u.full_name, r.guest_name, ''), r.user_id IS NULL, w.title, r.registered_at, w.price_minor
		FROM registrations r
		JOIN webinars w ON w.id = r.webinar_id
		LEFT JOIN users u ON u.id = r.user_id
		WHERE r.payment_status = 'success' AND r.registered_at >= $1
		ORDER BY r.registered_at DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Activity, error) {
		var a Activity
		err := row.Scan(&a.Name, &a.Guest, &a.Webinar, &a.RegisteredAt, &a.AmountMinor)
		return a, err
	})
}

// Upcoming returns the next limit webinars starting after now.
func (r *Repository) Upcoming(ctx context.Context, now time.Time, limit int) ([]UpcomingWebinar, error) {
	const q = `SELECT w.id, w.title, w.starts_at, w.capacity, COALESCE(u.full_name, ''),
		(SELECT COUNT(*) FROM registrations r WHERE r.webinar_id = w.id AND r.payment_status = 'success')
		FROM webinars w
		LEFT JOIN users u ON u.id = w.host_id
		WHERE w.starts_at > $1
		ORDER BY w.starts_at
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, fmt.Errorf("upcoming webinars: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (UpcomingWebinar, error) {
		var u UpcomingWebinar
		err := row.Scan(&u.ID, &u.Title, &u.StartsAt, &u.Capacity, &u.HostName, &u.RegisteredCount)
		return u, err
	})
}
