package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound is returned when no user row matches.
var ErrUserNotFound = errors.New("user not found")

// Contact is the addressable part of a platform user.
type Contact struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Phone    string    `json:"phone,omitempty"`
}

// Repository reads user records owned by the account service.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Contact returns the email and display name of a user.
func (r *Repository) Contact(ctx context.Context, id uuid.UUID) (*Contact, error) {
	const q = `SELECT id, email, full_name, COALESCE(contact_no,'') FROM users WHERE id = $1`
	var c Contact
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.UserID, &c.Email, &c.FullName, &c.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user contact: %w", err)
	}
	return &c, nil
}

// Contacts resolves many users at once. Unknown ids are absent from the map.
func (r *Repository) Contacts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Contact, error) {
	out := make(map[uuid.UUID]Contact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, full_name, COALESCE(contact_no,'') FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list user contacts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.UserID, &c.Email, &c.FullName, &c.Phone); err != nil {
			return nil, err
		}
		out[c.UserID] = c
	}
	return out, rows.Err()
}
