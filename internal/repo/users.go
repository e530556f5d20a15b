package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetOrCreateUser loads the user row for the phone number, creating an idle
// row on first contact.
func (r *PostgresRepository) GetOrCreateUser(ctx context.Context, phone, name string) (*User, error) {
	const q = `
INSERT INTO users (phone, name)
VALUES ($1, $2)
ON CONFLICT (phone) DO UPDATE SET
    name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
    updated_at = NOW()
RETURNING phone, name, current_state, temp_data, created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, q, phone, name)
	var u User
	if err := row.Scan(&u.Phone, &u.Name, &u.CurrentState, &u.TempData, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("get or create user: %w", err)
	}
	return &u, nil
}

// GetUser returns the user by phone number.
func (r *PostgresRepository) GetUser(ctx context.Context, phone string) (*User, error) {
	const q = `
SELECT phone, name, current_state, temp_data, created_at, updated_at
FROM users
WHERE phone = $1
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, q, phone)
	var u User
	if err := row.Scan(&u.Phone, &u.Name, &u.CurrentState, &u.TempData, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get user %s: %w", phone, ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// SetUserState persists the conversation state and flow payload for the user.
func (r *PostgresRepository) SetUserState(ctx context.Context, phone string, state ConvoState, tempData []byte) error {
	const q = `
UPDATE users
SET current_state = $2, temp_data = $3, updated_at = NOW()
WHERE phone = $1;
`
	ct, err := r.pool.Exec(ctx, q, phone, string(state), jsonParam(tempData))
	if err != nil {
		return fmt.Errorf("set user state: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("set user state %s: %w", phone, ErrNotFound)
	}
	return nil
}
