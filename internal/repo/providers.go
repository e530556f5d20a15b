package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const providerColumns = `telegram_id, kind, name, phone, vehicle, plate, address, commission_percent, balance, is_active, is_blocked, created_at, updated_at`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	if err := row.Scan(&p.TelegramID, &p.Kind, &p.Name, &p.Phone, &p.Vehicle, &p.Plate, &p.Address, &p.CommissionPercent, &p.Balance, &p.IsActive, &p.IsBlocked, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProvider stores or updates a provider account keyed by Telegram id.
// Balance is never written here; it moves only through ApplyLedgerEntry.
func (r *PostgresRepository) UpsertProvider(ctx context.Context, p Provider) (*Provider, error) {
	const q = `
INSERT INTO providers (telegram_id, kind, name, phone, vehicle, plate, address, commission_percent, is_active, is_blocked)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (telegram_id) DO UPDATE SET
    kind = EXCLUDED.kind,
    name = EXCLUDED.name,
    phone = EXCLUDED.phone,
    vehicle = EXCLUDED.vehicle,
    plate = EXCLUDED.plate,
    address = EXCLUDED.address,
    commission_percent = EXCLUDED.commission_percent,
    is_active = EXCLUDED.is_active,
    is_blocked = EXCLUDED.is_blocked,
    updated_at = NOW()
RETURNING ` + providerColumns + `;`
	row := r.pool.QueryRow(ctx, q,
		p.TelegramID, p.Kind, p.Name, p.Phone, p.Vehicle, p.Plate, p.Address,
		p.CommissionPercent, p.IsActive, p.IsBlocked,
	)
	saved, err := scanProvider(row)
	if err != nil {
		return nil, fmt.Errorf("upsert provider: %w", err)
	}
	return saved, nil
}

// GetProvider returns the provider by Telegram id.
func (r *PostgresRepository) GetProvider(ctx context.Context, telegramID int64) (*Provider, error) {
	const q = `
SELECT ` + providerColumns + `
FROM providers
WHERE telegram_id = $1
LIMIT 1;`
	p, err := scanProvider(r.pool.QueryRow(ctx, q, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get provider %d: %w", telegramID, ErrNotFound)
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return p, nil
}

// ListActiveProviders returns unblocked active providers of the kind.
func (r *PostgresRepository) ListActiveProviders(ctx context.Context, kind ProviderKind) ([]Provider, error) {
	const q = `
SELECT ` + providerColumns + `
FROM providers
WHERE kind = $1 AND is_active AND NOT is_blocked
ORDER BY created_at ASC;`
	rows, err := r.pool.Query(ctx, q, kind)
	if err != nil {
		return nil, fmt.Errorf("list active providers: %w", err)
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}
	return providers, nil
}
