package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// InsertAuctionTimer schedules the expiry sweep for a fanned-out order.
func (r *PostgresRepository) InsertAuctionTimer(ctx context.Context, timer AuctionTimer) error {
	const q = `
INSERT INTO auction_timers (order_id, service_type, expires_at)
VALUES ($1, $2, $3);
`
	if _, err := r.pool.Exec(ctx, q, timer.OrderID, timer.ServiceType, timer.ExpiresAt); err != nil {
		return fmt.Errorf("insert auction timer: %w", err)
	}
	return nil
}

// ListExpiredTimers returns unprocessed timers whose deadline has passed.
func (r *PostgresRepository) ListExpiredTimers(ctx context.Context, now time.Time) ([]AuctionTimer, error) {
	const q = `
SELECT id, order_id, service_type, expires_at, processed, created_at
FROM auction_timers
WHERE NOT processed AND expires_at <= $1
ORDER BY expires_at ASC;
`
	rows, err := r.pool.Query(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("list expired timers: %w", err)
	}
	defer rows.Close()

	var timers []AuctionTimer
	for rows.Next() {
		var t AuctionTimer
		if err := rows.Scan(&t.ID, &t.OrderID, &t.ServiceType, &t.ExpiresAt, &t.Processed, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan auction timer: %w", err)
		}
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auction timers: %w", err)
	}
	return timers, nil
}

// MarkTimerProcessed retires a timer so later sweeps skip it.
func (r *PostgresRepository) MarkTimerProcessed(ctx context.Context, id int64) error {
	const q = `UPDATE auction_timers SET processed = TRUE WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("mark timer processed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("mark timer %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpsertPharmacyBid records or refreshes a pharmacy price quote for an order.
func (r *PostgresRepository) UpsertPharmacyBid(ctx context.Context, bid PharmacyBid) (*PharmacyBid, error) {
	const q = `
INSERT INTO pharmacy_bids (order_id, provider_id, price)
VALUES ($1, $2, $3)
ON CONFLICT (order_id, provider_id) DO UPDATE SET
    price = EXCLUDED.price,
    created_at = NOW()
RETURNING id, order_id, provider_id, price, created_at;
`
	row := r.pool.QueryRow(ctx, q, bid.OrderID, bid.ProviderID, bid.Price)
	var saved PharmacyBid
	if err := row.Scan(&saved.ID, &saved.OrderID, &saved.ProviderID, &saved.Price, &saved.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert pharmacy bid: %w", err)
	}
	return &saved, nil
}

// GetPharmacyBid returns the quote a pharmacy placed on an order.
func (r *PostgresRepository) GetPharmacyBid(ctx context.Context, orderID string, providerID int64) (*PharmacyBid, error) {
	const q = `
SELECT id, order_id, provider_id, price, created_at
FROM pharmacy_bids
WHERE order_id = $1 AND provider_id = $2
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, q, orderID, providerID)
	var bid PharmacyBid
	if err := row.Scan(&bid.ID, &bid.OrderID, &bid.ProviderID, &bid.Price, &bid.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get pharmacy bid %s/%d: %w", orderID, providerID, ErrNotFound)
		}
		return nil, fmt.Errorf("get pharmacy bid: %w", err)
	}
	return &bid, nil
}
