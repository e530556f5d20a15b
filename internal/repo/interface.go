package repo

import (
	"context"
	"errors"
	"io/fs"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for data persistence. All status
// transitions that may race (provider claims, sweeper expiry) are
// conditional updates: they report whether the write was applied so the
// caller can tell a win from a lost race.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Users
	GetOrCreateUser(ctx context.Context, phone, name string) (*User, error)
	GetUser(ctx context.Context, phone string) (*User, error)
	SetUserState(ctx context.Context, phone string, state ConvoState, tempData []byte) error

	// Orders
	InsertOrder(ctx context.Context, order Order) (*Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	ClaimOrderProvider(ctx context.Context, orderID string, providerID int64) (bool, error)
	ConfirmOrderQuote(ctx context.Context, orderID string, providerID, priceTotal int64) (bool, error)
	ClaimOrderDriver(ctx context.Context, orderID string, driverID, commission int64) (bool, error)
	AssignDeliveryDriver(ctx context.Context, orderID string, driverID int64) (bool, error)
	AdvanceOrderStatus(ctx context.Context, orderID string, from, to OrderStatus) (bool, error)
	CountOrders(ctx context.Context) ([]StatusCount, error)

	// Providers
	UpsertProvider(ctx context.Context, p Provider) (*Provider, error)
	GetProvider(ctx context.Context, telegramID int64) (*Provider, error)
	ListActiveProviders(ctx context.Context, kind ProviderKind) ([]Provider, error)

	// Ledger: the balance mutation and the ledger row commit in one
	// transaction; there is no other path that changes a balance.
	ApplyLedgerEntry(ctx context.Context, entry LedgerEntry) (*LedgerEntry, error)
	ListLedgerByProvider(ctx context.Context, providerID int64) ([]LedgerEntry, error)

	// Auction timers
	InsertAuctionTimer(ctx context.Context, timer AuctionTimer) error
	ListExpiredTimers(ctx context.Context, now time.Time) ([]AuctionTimer, error)
	MarkTimerProcessed(ctx context.Context, id int64) error

	// Pharmacy bids
	UpsertPharmacyBid(ctx context.Context, bid PharmacyBid) (*PharmacyBid, error)
	GetPharmacyBid(ctx context.Context, orderID string, providerID int64) (*PharmacyBid, error)
}
