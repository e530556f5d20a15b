package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// -- Users --

func (r *SQLiteRepository) GetOrCreateUser(ctx context.Context, phone, name string) (*User, error) {
	const q = `
INSERT INTO users (phone, name)
VALUES (?, ?)
ON CONFLICT (phone) DO UPDATE SET
    name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END,
    updated_at = CURRENT_TIMESTAMP
RETURNING phone, name, current_state, temp_data, created_at, updated_at;
`
	row := r.db.QueryRowContext(ctx, q, phone, name)
	var u User
	var tempData string
	if err := row.Scan(&u.Phone, &u.Name, &u.CurrentState, &tempData, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("get or create user: %w", err)
	}
	u.TempData = []byte(tempData)
	return &u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, phone string) (*User, error) {
	const q = `
SELECT phone, name, current_state, temp_data, created_at, updated_at
FROM users
WHERE phone = ?
LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, phone)
	var u User
	var tempData string
	if err := row.Scan(&u.Phone, &u.Name, &u.CurrentState, &tempData, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get user %s: %w", phone, ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.TempData = []byte(tempData)
	return &u, nil
}

func (r *SQLiteRepository) SetUserState(ctx context.Context, phone string, state ConvoState, tempData []byte) error {
	const q = `
UPDATE users
SET current_state = ?, temp_data = ?, updated_at = CURRENT_TIMESTAMP
WHERE phone = ?;
`
	ct, err := r.db.ExecContext(ctx, q, string(state), jsonParam(tempData), phone)
	if err != nil {
		return fmt.Errorf("set user state: %w", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return fmt.Errorf("set user state %s: %w", phone, ErrNotFound)
	}
	return nil
}

// -- Orders --

func (r *SQLiteRepository) scanOrderRow(row *sql.Row) (*Order, error) {
	var o Order
	var details string
	var acceptedAt sql.NullTime
	if err := row.Scan(&o.ID, &o.Type, &o.Status, &o.ClientPhone, &details, &o.PriceTotal, &o.Commission, &o.ProviderID, &o.DriverID, &acceptedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Details = []byte(details)
	if acceptedAt.Valid {
		o.AcceptedAt = &acceptedAt.Time
	}
	return &o, nil
}

func (r *SQLiteRepository) InsertOrder(ctx context.Context, order Order) (*Order, error) {
	const q = `
INSERT INTO orders (id, type, status, client_phone, details, price_total, commission)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + orderColumns + `;`
	row := r.db.QueryRowContext(ctx, q,
		order.ID, order.Type, order.Status, order.ClientPhone,
		jsonParam(order.Details), order.PriceTotal, order.Commission,
	)
	inserted, err := r.scanOrderRow(row)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return inserted, nil
}

func (r *SQLiteRepository) GetOrder(ctx context.Context, id string) (*Order, error) {
	const q = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = ?
LIMIT 1;`
	order, err := r.scanOrderRow(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get order %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func (r *SQLiteRepository) ClaimOrderProvider(ctx context.Context, orderID string, providerID int64) (bool, error) {
	const q = `
UPDATE orders
SET status = 'accepted', provider_id = ?, accepted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'pending' AND provider_id IS NULL;
`
	ct, err := r.db.ExecContext(ctx, q, providerID, orderID)
	if err != nil {
		return false, fmt.Errorf("claim order provider: %w", err)
	}
	n, _ := ct.RowsAffected()
	return n == 1, nil
}

func (r *SQLiteRepository) ConfirmOrderQuote(ctx context.Context, orderID string, providerID, priceTotal int64) (bool, error) {
	const q = `
UPDATE orders
SET status = 'accepted', provider_id = ?, price_total = ?, accepted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'pending' AND provider_id IS NULL;
`
	ct, err := r.db.ExecContext(ctx, q, providerID, priceTotal, orderID)
	if err != nil {
		return false, fmt.Errorf("confirm order quote: %w", err)
	}
	n, _ := ct.RowsAffected()
	return n == 1, nil
}

func (r *SQLiteRepository) ClaimOrderDriver(ctx context.Context, orderID string, driverID, commission int64) (bool, error) {
	const q = `
UPDATE orders
SET status = 'accepted', driver_id = ?, commission = ?, accepted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'pending' AND driver_id IS NULL;
`
	ct, err := r.db.ExecContext(ctx, q, driverID, commission, orderID)
	if err != nil {
		return false, fmt.Errorf("claim order driver: %w", err)
	}
	n, _ := ct.RowsAffected()
	return n == 1, nil
}

func (r *SQLiteRepository) AssignDeliveryDriver(ctx context.Context, orderID string, driverID int64) (bool, error) {
	const q = `
UPDATE orders
SET status = 'in_progress', driver_id = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'accepted' AND driver_id IS NULL;
`
	ct, err := r.db.ExecContext(ctx, q, driverID, orderID)
	if err != nil {
		return false, fmt.Errorf("assign delivery driver: %w", err)
	}
	n, _ := ct.RowsAffected()
	return n == 1, nil
}

func (r *SQLiteRepository) AdvanceOrderStatus(ctx context.Context, orderID string, from, to OrderStatus) (bool, error) {
	const q = `
UPDATE orders
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = ?;
`
	ct, err := r.db.ExecContext(ctx, q, to, orderID, from)
	if err != nil {
		return false, fmt.Errorf("advance order status: %w", err)
	}
	n, _ := ct.RowsAffected()
	return n == 1, nil
}

func (r *SQLiteRepository) CountOrders(ctx context.Context) ([]StatusCount, error) {
	const q = `
SELECT type, status, COUNT(*)
FROM orders
GROUP BY type, status
ORDER BY type, status;
`
	rows, err := r.db.QueryContext(ctx, q)
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

// -- Providers --

func (r *SQLiteRepository) UpsertProvider(ctx context.Context, p Provider) (*Provider, error) {
	const q = `
INSERT INTO providers (telegram_id, kind, name, phone, vehicle, plate, address, commission_percent, is_active, is_blocked)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (telegram_id) DO UPDATE SET
    kind = excluded.kind,
    name = excluded.name,
    phone = excluded.phone,
    vehicle = excluded.vehicle,
    plate = excluded.plate,
    address = excluded.address,
    commission_percent = excluded.commission_percent,
    is_active = excluded.is_active,
    is_blocked = excluded.is_blocked,
    updated_at = CURRENT_TIMESTAMP
RETURNING ` + providerColumns + `;`
	row := r.db.QueryRowContext(ctx, q,
		p.TelegramID, p.Kind, p.Name, p.Phone, p.Vehicle, p.Plate, p.Address,
		p.CommissionPercent, p.IsActive, p.IsBlocked,
	)
	var saved Provider
	if err := row.Scan(&saved.TelegramID, &saved.Kind, &saved.Name, &saved.Phone, &saved.Vehicle, &saved.Plate, &saved.Address, &saved.CommissionPercent, &saved.Balance, &saved.IsActive, &saved.IsBlocked, &saved.CreatedAt, &saved.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert provider: %w", err)
	}
	return &saved, nil
}

func (r *SQLiteRepository) GetProvider(ctx context.Context, telegramID int64) (*Provider, error) {
	const q = `
SELECT ` + providerColumns + `
FROM providers
WHERE telegram_id = ?
LIMIT 1;`
	row := r.db.QueryRowContext(ctx, q, telegramID)
	var p Provider
	if err := row.Scan(&p.TelegramID, &p.Kind, &p.Name, &p.Phone, &p.Vehicle, &p.Plate, &p.Address, &p.CommissionPercent, &p.Balance, &p.IsActive, &p.IsBlocked, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get provider %d: %w", telegramID, ErrNotFound)
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return &p, nil
}

func (r *SQLiteRepository) ListActiveProviders(ctx context.Context, kind ProviderKind) ([]Provider, error) {
	const q = `
SELECT ` + providerColumns + `
FROM providers
WHERE kind = ? AND is_active AND NOT is_blocked
ORDER BY created_at ASC;`
	rows, err := r.db.QueryContext(ctx, q, kind)
	if err != nil {
		return nil, fmt.Errorf("list active providers: %w", err)
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.TelegramID, &p.Kind, &p.Name, &p.Phone, &p.Vehicle, &p.Plate, &p.Address, &p.CommissionPercent, &p.Balance, &p.IsActive, &p.IsBlocked, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}
	return providers, nil
}

// -- Ledger --

func (r *SQLiteRepository) ApplyLedgerEntry(ctx context.Context, entry LedgerEntry) (*LedgerEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		const insertQ = `
INSERT INTO ledger (id, provider_id, order_id, action, amount, details, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?);
`
		if _, err := tx.ExecContext(ctx, insertQ,
			entry.ID, entry.ProviderID, entry.OrderID, entry.Action, entry.Amount, entry.Details, entry.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}

		const balanceQ = `
UPDATE providers
SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP
WHERE telegram_id = ?;
`
		ct, err := tx.ExecContext(ctx, balanceQ, entry.Amount, entry.ProviderID)
		if err != nil {
			return fmt.Errorf("apply balance: %w", err)
		}
		if n, _ := ct.RowsAffected(); n == 0 {
			return fmt.Errorf("apply balance %d: %w", entry.ProviderID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *SQLiteRepository) ListLedgerByProvider(ctx context.Context, providerID int64) ([]LedgerEntry, error) {
	const q = `
SELECT id, provider_id, order_id, action, amount, details, created_at
FROM ledger
WHERE provider_id = ?
ORDER BY created_at ASC;
`
	rows, err := r.db.QueryContext(ctx, q, providerID)
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

// -- Auction timers --

func (r *SQLiteRepository) InsertAuctionTimer(ctx context.Context, timer AuctionTimer) error {
	const q = `
INSERT INTO auction_timers (order_id, service_type, expires_at)
VALUES (?, ?, ?);
`
	if _, err := r.db.ExecContext(ctx, q, timer.OrderID, timer.ServiceType, timer.ExpiresAt); err != nil {
		return fmt.Errorf("insert auction timer: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListExpiredTimers(ctx context.Context, now time.Time) ([]AuctionTimer, error) {
	const q = `
SELECT id, order_id, service_type, expires_at, processed, created_at
FROM auction_timers
WHERE NOT processed AND expires_at <= ?
ORDER BY expires_at ASC;
`
	rows, err := r.db.QueryContext(ctx, q, now)
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

func (r *SQLiteRepository) MarkTimerProcessed(ctx context.Context, id int64) error {
	const q = `UPDATE auction_timers SET processed = 1 WHERE id = ?;`
	ct, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("mark timer processed: %w", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return fmt.Errorf("mark timer %d: %w", id, ErrNotFound)
	}
	return nil
}

// -- Pharmacy bids --

func (r *SQLiteRepository) UpsertPharmacyBid(ctx context.Context, bid PharmacyBid) (*PharmacyBid, error) {
	const q = `
INSERT INTO pharmacy_bids (order_id, provider_id, price)
VALUES (?, ?, ?)
ON CONFLICT (order_id, provider_id) DO UPDATE SET
    price = excluded.price,
    created_at = CURRENT_TIMESTAMP
RETURNING id, order_id, provider_id, price, created_at;
`
	row := r.db.QueryRowContext(ctx, q, bid.OrderID, bid.ProviderID, bid.Price)
	var saved PharmacyBid
	if err := row.Scan(&saved.ID, &saved.OrderID, &saved.ProviderID, &saved.Price, &saved.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert pharmacy bid: %w", err)
	}
	return &saved, nil
}

func (r *SQLiteRepository) GetPharmacyBid(ctx context.Context, orderID string, providerID int64) (*PharmacyBid, error) {
	const q = `
SELECT id, order_id, provider_id, price, created_at
FROM pharmacy_bids
WHERE order_id = ? AND provider_id = ?
LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, orderID, providerID)
	var bid PharmacyBid
	if err := row.Scan(&bid.ID, &bid.OrderID, &bid.ProviderID, &bid.Price, &bid.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get pharmacy bid %s/%d: %w", orderID, providerID, ErrNotFound)
		}
		return nil, fmt.Errorf("get pharmacy bid: %w", err)
	}
	return &bid, nil
}
