package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ApplyLedgerEntry appends a ledger row and applies its amount to the
// provider balance in a single transaction. The sum of a provider's ledger
// amounts always reconciles to its stored balance.
func (r *PostgresRepository) ApplyLedgerEntry(ctx context.Context, entry LedgerEntry) (*LedgerEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		const insertQ = `
INSERT INTO ledger (id, provider_id, order_id, action, amount, details)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at;
`
		if err := tx.QueryRow(ctx, insertQ,
			entry.ID, entry.ProviderID, entry.OrderID, entry.Action, entry.Amount, entry.Details,
		).Scan(&entry.CreatedAt); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}

		const balanceQ = `
UPDATE providers
SET balance = balance + $2, updated_at = NOW()
WHERE telegram_id = $1;
`
		ct, err := tx.Exec(ctx, balanceQ, entry.ProviderID, entry.Amount)
		if err != nil {
			return fmt.Errorf("apply balance: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("apply balance %d: %w", entry.ProviderID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListLedgerByProvider returns the full ledger history for a provider,
// oldest first.
func (r *PostgresRepository) ListLedgerByProvider(ctx context.Context, providerID int64) ([]LedgerEntry, error) {
	const q = `
SELECT id, provider_id, order_id, action, amount, details, created_at
FROM ledger
WHERE provider_id = $1
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, q, providerID)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.ProviderID, &e.OrderID, &e.Action, &e.Amount, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return entries, nil
}
