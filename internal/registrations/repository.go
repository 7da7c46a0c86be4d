package registrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/admissions/internal/models"
)

const pgUniqueViolation = "23505"

// Repository handles registration persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ Store  = (*Repository)(nil)
	_ Reader = (*Repository)(nil)
)

const registrationColumns = `id, webinar_id, user_id, guest_email, COALESCE(guest_name,''), COALESCE(guest_phone,''),
	payment_status, COALESCE(razorpay_order_id,''), COALESCE(razorpay_payment_id,''), COALESCE(razorpay_signature,''),
	reminder_24h_sent, reminder_1h_sent, starting_sent, version, registered_at, updated_at`

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var (
		reg        models.Registration
		userID     *uuid.UUID
		guestEmail *string
		guest      models.Guest
		status     string
	)
	err := row.Scan(&reg.ID, &reg.WebinarID, &userID, &guestEmail, &guest.Name, &guest.Phone,
		&status, &reg.OrderID, &reg.PaymentID, &reg.Signature,
		&reg.Reminder24hSent, &reg.Reminder1hSent, &reg.StartingSent, &reg.Version, &reg.RegisteredAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	reg.PaymentStatus = models.PaymentStatus(status)
	switch {
	case userID != nil:
		reg.Attendee = models.UserAttendee(*userID)
	case guestEmail != nil:
		guest.Email = *guestEmail
		reg.Attendee = models.GuestAttendee(guest)
	}
	return &reg, nil
}

func collectRegistrations(rows pgx.Rows) ([]models.Registration, error) {
	defer rows.Close()
	list := []models.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *reg)
	}
	return list, rows.Err()
}

type identityArgs struct {
	userID     *uuid.UUID
	guestEmail *string
	guestName  *string
	guestPhone *string
}

func identityOf(a models.Attendee) identityArgs {
	if id, ok := a.UserID(); ok {
		return identityArgs{userID: &id}
	}
	g, _ := a.Guest()
	args := identityArgs{guestEmail: &g.Email, guestName: &g.Name}
	if g.Phone != "" {
		args.guestPhone = &g.Phone
	}
	return args
}

// InsertAdmitted runs the admission check and the insert in one transaction
// holding the webinar row lock, so concurrent admissions for the same webinar
// are serialized.
func (r *Repository) InsertAdmitted(ctx context.Context, reg *models.Registration, check func(AdmissionSnapshot) error) error {
	if reg.Attendee.IsZero() {
		return fmt.Errorf("%w: registration has no attendee", ErrInvalidInput)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin admission tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var snap AdmissionSnapshot
	err = tx.QueryRow(ctx, `SELECT capacity, starts_at FROM webinars WHERE id = $1 FOR UPDATE`, reg.WebinarID).
		Scan(&snap.Capacity, &snap.StartsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: webinar", ErrNotFound)
		}
		return fmt.Errorf("lock webinar: %w", err)
	}

	id := identityOf(reg.Attendee)
	const snapshotQ = `SELECT
		EXISTS (SELECT 1 FROM registrations WHERE webinar_id = $1 AND payment_status <> 'failed'
			AND (user_id = $2 OR guest_email = $3)),
		(SELECT COUNT(*) FROM registrations WHERE webinar_id = $1 AND payment_status IN ('pending','success'))`
	if err := tx.QueryRow(ctx, snapshotQ, reg.WebinarID, id.userID, id.guestEmail).Scan(&snap.Duplicate, &snap.Held); err != nil {
		return fmt.Errorf("admission snapshot: %w", err)
	}
	if err := check(snap); err != nil {
		return err
	}

	const insertQ = `INSERT INTO registrations (webinar_id, user_id, guest_email, guest_name, guest_phone, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, version, registered_at, updated_at`
	err = tx.QueryRow(ctx, insertQ, reg.WebinarID, id.userID, id.guestEmail, id.guestName, id.guestPhone, string(reg.PaymentStatus)).
		Scan(&reg.ID, &reg.Version, &reg.RegisteredAt, &reg.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: already registered for this webinar", ErrConflict)
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit admission: %w", err)
	}
	return nil
}

// GetByID returns a registration by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: registration", ErrNotFound)
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// SetOrderID stores the gateway order on a pending registration.
func (r *Repository) SetOrderID(ctx context.Context, reg *models.Registration) error {
	const q = `UPDATE registrations SET razorpay_order_id = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND payment_status = 'pending'
		RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, q, reg.ID, reg.Version, reg.OrderID).Scan(&reg.Version, &reg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConcurrencyConflict
		}
		return fmt.Errorf("set order id: %w", err)
	}
	return nil
}

// Transition moves the payment status when the row is still at the expected
// version and its current status may move to t.To.
func (r *Repository) Transition(ctx context.Context, t Transition) (*models.Registration, error) {
	from := make([]string, 0, 2)
	for _, st := range t.To.Sources() {
		from = append(from, string(st))
	}
	q := `UPDATE registrations SET payment_status = $3,
		razorpay_payment_id = COALESCE(NULLIF($4,''), razorpay_payment_id),
		razorpay_signature = COALESCE(NULLIF($5,''), razorpay_signature),
		version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND payment_status = ANY($6)
		RETURNING ` + registrationColumns
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, t.ID, t.ExpectedVersion, string(t.To), t.PaymentID, t.Signature, from))
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transition registration: %w", err)
	}

	var (
		status  string
		version int
	)
	err = r.pool.QueryRow(ctx, `SELECT payment_status, version FROM registrations WHERE id = $1`, t.ID).Scan(&status, &version)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && version != t.ExpectedVersion) {
		return nil, ErrConcurrencyConflict
	}
	if err != nil {
		return nil, fmt.Errorf("read registration state: %w", err)
	}
	return nil, illegalTransition(models.PaymentStatus(status), t.To)
}

// Delete removes a registration still at version.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID, version int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM registrations WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrencyConflict
	}
	return nil
}

// ExpireStalePending fails pending holds registered before cutoff and returns
// them. Rows are kept with their order ids so a payment that arrives later
// can still be matched and refunded.
func (r *Repository) ExpireStalePending(ctx context.Context, cutoff time.Time) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx, `UPDATE registrations
		SET payment_status = 'failed', version = version + 1, updated_at = NOW()
		WHERE payment_status = 'pending' AND registered_at < $1
		RETURNING `+registrationColumns, cutoff)
	if err != nil {
		return nil, fmt.Errorf("expire stale pending: %w", err)
	}
	return collectRegistrations(rows)
}

// RecordLatePayment stores a payment that arrived after the hold was
// released. It only touches failed rows that have no payment yet.
func (r *Repository) RecordLatePayment(ctx context.Context, t Transition) (*models.Registration, error) {
	q := `UPDATE registrations SET razorpay_payment_id = $3, razorpay_signature = NULLIF($4,''),
		version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND payment_status = 'failed' AND razorpay_payment_id IS NULL
		RETURNING ` + registrationColumns
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, t.ID, t.ExpectedVersion, t.PaymentID, t.Signature))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConcurrencyConflict
		}
		return nil, fmt.Errorf("record late payment: %w", err)
	}
	return reg, nil
}

// ListPaidByWebinar returns the success registrations of a webinar.
func (r *Repository) ListPaidByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE webinar_id = $1 AND payment_status = 'success' ORDER BY registered_at`, webinarID)
	if err != nil {
		return nil, fmt.Errorf("list paid registrations: %w", err)
	}
	return collectRegistrations(rows)
}

func milestoneColumn(m models.Milestone) (string, error) {
	switch m {
	case models.MilestoneReminder24h:
		return "reminder_24h_sent", nil
	case models.MilestoneReminder1h:
		return "reminder_1h_sent", nil
	case models.MilestoneStarting:
		return "starting_sent", nil
	}
	return "", fmt.Errorf("unknown milestone %q", m)
}

// MarkMilestoneSent sets the milestone flag if it is still unset. It reports
// whether this call flipped it. The flag is never cleared.
func (r *Repository) MarkMilestoneSent(ctx context.Context, id uuid.UUID, m models.Milestone) (bool, error) {
	col, err := milestoneColumn(m)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE registrations SET `+col+` = TRUE, updated_at = NOW() WHERE id = $1 AND `+col+` = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", m, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns a user's registrations, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE user_id = $1 ORDER BY registered_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user registrations: %w", err)
	}
	return collectRegistrations(rows)
}

// ListAttendees returns paid registrations with names and emails resolved
// from the user record for platform users.
func (r *Repository) ListAttendees(ctx context.Context, webinarID uuid.UUID) ([]AttendeeRow, error) {
	const q = `SELECT r.id, r.user_id, r.user_id IS NULL,
		COALESCE(u.full_name, r.guest_name, ''), COALESCE(u.email, r.guest_email, ''),
		COALESCE(u.contact_no, r.guest_phone, ''), r.registered_at
		FROM registrations r
		LEFT JOIN users u ON u.id = r.user_id
		WHERE r.webinar_id = $1 AND r.payment_status = 'success'
		ORDER BY r.registered_at`
	rows, err := r.pool.Query(ctx, q, webinarID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()
	list := []AttendeeRow{}
	for rows.Next() {
		var a AttendeeRow
		if err := rows.Scan(&a.RegistrationID, &a.UserID, &a.Guest, &a.Name, &a.Email, &a.Phone, &a.RegisteredAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
