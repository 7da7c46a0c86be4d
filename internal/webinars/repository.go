package webinars

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/admissions/internal/models"
)

// ErrNotFound is returned when no webinar matches.
var ErrNotFound = errors.New("webinar not found")

// Listing is a webinar with its seat usage. RegisteredCount is paid seats;
// HeldCount adds the pending holds that admission also counts.
type Listing struct {
	models.Webinar
	RegisteredCount int  `json:"registered_count"`
	HeldCount       int  `json:"held_count"`
	SeatsAvailable  int  `json:"seats_available"`
	IsFull          bool `json:"is_full"`
}

func newListing(w *models.Webinar, paid, held int) Listing {
	available := w.Capacity - held
	if available < 0 {
		available = 0
	}
	return Listing{Webinar: *w, RegisteredCount: paid, HeldCount: held, SeatsAvailable: available, IsFull: available == 0}
}

// Repository handles webinar persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webinar repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const webinarColumns = `w.id, w.title, w.description, w.starts_at, w.duration_minutes, w.capacity,
	w.price_minor, w.currency, w.host_id, COALESCE(w.join_link,''), COALESCE(w.platform,''), w.created_at, w.updated_at`

const listingColumns = webinarColumns + `,
	(SELECT COUNT(*) FROM registrations r WHERE r.webinar_id = w.id AND r.payment_status = 'success'),
	(SELECT COUNT(*) FROM registrations r WHERE r.webinar_id = w.id AND r.payment_status IN ('pending','success'))`

func scanWebinar(row pgx.Row, extra ...any) (*models.Webinar, error) {
	var w models.Webinar
	dest := append([]any{&w.ID, &w.Title, &w.Description, &w.StartsAt, &w.DurationMinutes, &w.Capacity,
		&w.PriceMinor, &w.Currency, &w.HostID, &w.JoinLink, &w.Platform, &w.CreatedAt, &w.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &w, nil
}

func scanListing(row pgx.Row) (*Listing, error) {
	var paid, held int
	w, err := scanWebinar(row, &paid, &held)
	if err != nil {
		return nil, err
	}
	l := newListing(w, paid, held)
	return &l, nil
}

// Create inserts a new webinar.
func (r *Repository) Create(ctx context.Context, w *models.Webinar) error {
	const q = `INSERT INTO webinars (title, description, starts_at, duration_minutes, capacity, price_minor, currency, host_id, join_link, platform)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9,''), NULLIF($10,''))
		RETURNING id, created_at, updated_at`
	if w.Currency == "" {
		w.Currency = models.DefaultCurrency
	}
	err := r.pool.QueryRow(ctx, q, w.Title, w.Description, w.StartsAt, w.DurationMinutes, w.Capacity,
		w.PriceMinor, w.Currency, w.HostID, w.JoinLink, w.Platform).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert webinar: %w", err)
	}
	return nil
}

// GetByID returns a webinar by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error) {
	w, err := scanWebinar(r.pool.QueryRow(ctx, `SELECT `+webinarColumns+` FROM webinars w WHERE w.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get webinar: %w", err)
	}
	return w, nil
}

// GetListing returns a webinar with its registered count.
func (r *Repository) GetListing(ctx context.Context, id uuid.UUID) (*Listing, error) {
	l, err := scanListing(r.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM webinars w WHERE w.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get webinar listing: %w", err)
	}
	return l, nil
}

// ListFilter narrows List. A nil field does not filter.
type ListFilter struct {
	StartsAfter *time.Time
	HostID      *uuid.UUID
}

// List returns webinars matching f, soonest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Listing, error) {
	q := `SELECT ` + listingColumns + ` FROM webinars w WHERE TRUE`
	var args []any
	if f.StartsAfter != nil {
		args = append(args, *f.StartsAfter)
		q += fmt.Sprintf(` AND w.starts_at > $%d`, len(args))
	}
	if f.HostID != nil {
		args = append(args, *f.HostID)
		q += fmt.Sprintf(` AND w.host_id = $%d`, len(args))
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY w.starts_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list webinars: %w", err)
	}
	defer rows.Close()

	list := []Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *l)
	}
	return list, rows.Err()
}

// ListStartingBetween returns webinars with from <= starts_at <= to.
func (r *Repository) ListStartingBetween(ctx context.Context, from, to time.Time) ([]models.Webinar, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+webinarColumns+` FROM webinars w WHERE w.starts_at BETWEEN $1 AND $2 ORDER BY w.starts_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list webinars in window: %w", err)
	}
	defer rows.Close()

	var list []models.Webinar
	for rows.Next() {
		w, err := scanWebinar(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *w)
	}
	return list, rows.Err()
}

// Update applies host edits. Capacity cannot drop below the seats already
// held, paid or pending.
func (r *Repository) Update(ctx context.Context, w *models.Webinar) error {
	const q = `UPDATE webinars w SET title = $2, description = $3, starts_at = $4, duration_minutes = $5,
		capacity = $6, join_link = NULLIF($7,''), platform = NULLIF($8,''), updated_at = NOW()
		WHERE w.id = $1 AND $6 >= (SELECT COUNT(*) FROM registrations r
			WHERE r.webinar_id = w.id AND r.payment_status IN ('pending','success'))
		RETURNING w.updated_at`
	err := r.pool.QueryRow(ctx, q, w.ID, w.Title, w.Description, w.StartsAt, w.DurationMinutes,
		w.Capacity, w.JoinLink, w.Platform).Scan(&w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCapacityBelowRegistered
		}
		return fmt.Errorf("update webinar: %w", err)
	}
	return nil
}

// ErrCapacityBelowRegistered is returned when an edit would shrink capacity under held seats.
var ErrCapacityBelowRegistered = errors.New("capacity is below the number of held registrations")

// ErrHasRegistrations is returned when deleting a webinar that still holds seats.
var ErrHasRegistrations = errors.New("webinar has paid or pending registrations")

// Delete removes a webinar that holds no pending or paid registrations.
// Failed registrations and email logs go with it.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webinars w WHERE w.id = $1 AND NOT EXISTS (
		SELECT 1 FROM registrations r WHERE r.webinar_id = w.id AND r.payment_status IN ('pending','success'))`, id)
	if err != nil {
		return fmt.Errorf("delete webinar: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM webinars WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check webinar: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrHasRegistrations
}
