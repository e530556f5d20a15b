package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, type, status, client_phone, details, price_total, commission, provider_id, driver_id, accepted_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	if err := row.Scan(&o.ID, &o.Type, &o.Status, &o.ClientPhone, &o.Details, &o.PriceTotal, &o.Commission, &o.ProviderID, &o.DriverID, &o.AcceptedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// InsertOrder stores a new order record.
func (r *PostgresRepository) InsertOrder(ctx context.Context, order Order) (*Order, error) {
	const q = `
INSERT INTO orders (id, type, status, client_phone, details, price_total, commission)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + orderColumns + `;`
	row := r.pool.QueryRow(ctx, q,
		order.ID,
		order.Type,
		order.Status,
		order.ClientPhone,
		jsonParam(order.Details),
		order.PriceTotal,
		order.Commission,
	)
	inserted, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return inserted, nil
}

// GetOrder retrieves an order by id.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*Order, error) {
	const q = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
LIMIT 1;`
	order, err := scanOrder(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get order %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ClaimOrderProvider transitions a pending order to accepted with the
// provider committed, only if no provider won it first. The returned bool
// reports whether this caller won the claim.
func (r *PostgresRepository) ClaimOrderProvider(ctx context.Context, orderID string, providerID int64) (bool, error) {
	const q = `
UPDATE orders
SET status = 'accepted', provider_id = $2, accepted_at = NOW(), updated_at = NOW()
WHERE id = $1 AND status = 'pending' AND provider_id IS NULL;
`
	ct, err := r.pool.Exec(ctx, q, orderID, providerID)
	if err != nil {
		return false, fmt.Errorf("claim order provider: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ConfirmOrderQuote is the customer-side acceptance of a provider quote:
// the claim commits the provider together with the agreed total, so the
// stored price survives for the courier brief and any later refund.
func (r *PostgresRepository) ConfirmOrderQuote(ctx context.Context, orderID string, providerID, priceTotal int64) (bool, error) {
	const q = `
UPDATE orders
SET status = 'accepted', provider_id = $2, price_total = $3, accepted_at = NOW(), updated_at = NOW()
WHERE id = $1 AND status = 'pending' AND provider_id IS NULL;
`
	ct, err := r.pool.Exec(ctx, q, orderID, providerID, priceTotal)
	if err != nil {
		return false, fmt.Errorf("confirm order quote: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ClaimOrderDriver is the driver-side claim for taxi/porter orders. The
// charged commission is stored on the order so a cancellation refunds
// exactly what was taken.
func (r *PostgresRepository) ClaimOrderDriver(ctx context.Context, orderID string, driverID, commission int64) (bool, error) {
	const q = `
UPDATE orders
SET status = 'accepted', driver_id = $2, commission = $3, accepted_at = NOW(), updated_at = NOW()
WHERE id = $1 AND status = 'pending' AND driver_id IS NULL;
`
	ct, err := r.pool.Exec(ctx, q, orderID, driverID, commission)
	if err != nil {
		return false, fmt.Errorf("claim order driver: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// AssignDeliveryDriver attaches a delivery driver to an accepted cafe or
// pharmacy order and moves it to in_progress.
func (r *PostgresRepository) AssignDeliveryDriver(ctx context.Context, orderID string, driverID int64) (bool, error) {
	const q = `
UPDATE orders
SET status = 'in_progress', driver_id = $2, updated_at = NOW()
WHERE id = $1 AND status = 'accepted' AND driver_id IS NULL;
`
	ct, err := r.pool.Exec(ctx, q, orderID, driverID)
	if err != nil {
		return false, fmt.Errorf("assign delivery driver: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// AdvanceOrderStatus applies the from→to transition only if the stored
// status still equals from. Used by progression callbacks and the sweeper.
func (r *PostgresRepository) AdvanceOrderStatus(ctx context.Context, orderID string, from, to OrderStatus) (bool, error) {
	const q = `
UPDATE orders
SET status = $3, updated_at = NOW()
WHERE id = $1 AND status = $2;
`
	ct, err := r.pool.Exec(ctx, q, orderID, from, to)
	if err != nil {
		return false, fmt.Errorf("advance order status: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// CountOrders aggregates order counts per service type and status.
func (r *PostgresRepository) CountOrders(ctx context.Context) ([]StatusCount, error) {
	const q = `
SELECT type, status, COUNT(*)
FROM orders
GROUP BY type, status
ORDER BY type, status;
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Type, &sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan order count: %w", err)
		}
		counts = append(counts, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order counts: %w", err)
	}
	return counts, nil
}
