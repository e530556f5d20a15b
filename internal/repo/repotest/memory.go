// Package repotest provides an in-memory Repository for behavioural tests.
// Conditional updates take the same lock as reads, so claim races behave
// like the SQL implementations.
package repotest

import (
	"context"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"

	"gorod-bot/internal/repo"
)

// Memory is an in-memory repo.Repository.
type Memory struct {
	mu        sync.Mutex
	users     map[string]*repo.User
	orders    map[string]*repo.Order
	providers map[int64]*repo.Provider
	ledger    []repo.LedgerEntry
	timers    []repo.AuctionTimer
	bids      map[string]map[int64]*repo.PharmacyBid
	nextTimer int64
}

// New creates an empty in-memory repository.
func New() *Memory {
	return &Memory{
		users:     make(map[string]*repo.User),
		orders:    make(map[string]*repo.Order),
		providers: make(map[int64]*repo.Provider),
		bids:      make(map[string]map[int64]*repo.PharmacyBid),
	}
}

func (m *Memory) Close()                                     {}
func (m *Memory) Ping(context.Context) error                 { return nil }
func (m *Memory) RunMigrations(context.Context, fs.FS) error { return nil }

func (m *Memory) GetOrCreateUser(_ context.Context, phone, name string) (*repo.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[phone]; ok {
		if name != "" {
			u.Name = name
		}
		cp := *u
		return &cp, nil
	}
	u := &repo.User{
		Phone:        phone,
		Name:         name,
		CurrentState: repo.StateIdle,
		TempData:     []byte("{}"),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.users[phone] = u
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUser(_ context.Context, phone string) (*repo.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[phone]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) SetUserState(_ context.Context, phone string, state repo.ConvoState, tempData []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[phone]
	if !ok {
		return repo.ErrNotFound
	}
	u.CurrentState = state
	if len(tempData) == 0 {
		tempData = []byte("{}")
	}
	u.TempData = tempData
	u.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) InsertOrder(_ context.Context, order repo.Order) (*repo.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := order
	m.orders[order.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) GetOrder(_ context.Context, id string) (*repo.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) ClaimOrderProvider(_ context.Context, orderID string, providerID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != repo.StatusPending || o.ProviderID != nil {
		return false, nil
	}
	now := time.Now()
	o.Status = repo.StatusAccepted
	o.ProviderID = &providerID
	o.AcceptedAt = &now
	o.UpdatedAt = now
	return true, nil
}

func (m *Memory) ConfirmOrderQuote(_ context.Context, orderID string, providerID, priceTotal int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != repo.StatusPending || o.ProviderID != nil {
		return false, nil
	}
	now := time.Now()
	o.Status = repo.StatusAccepted
	o.ProviderID = &providerID
	o.PriceTotal = priceTotal
	o.AcceptedAt = &now
	o.UpdatedAt = now
	return true, nil
}

func (m *Memory) ClaimOrderDriver(_ context.Context, orderID string, driverID, commission int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != repo.StatusPending || o.DriverID != nil {
		return false, nil
	}
	now := time.Now()
	o.Status = repo.StatusAccepted
	o.DriverID = &driverID
	o.Commission = commission
	o.AcceptedAt = &now
	o.UpdatedAt = now
	return true, nil
}

func (m *Memory) AssignDeliveryDriver(_ context.Context, orderID string, driverID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != repo.StatusAccepted || o.DriverID != nil {
		return false, nil
	}
	o.Status = repo.StatusInProgress
	o.DriverID = &driverID
	o.UpdatedAt = time.Now()
	return true, nil
}

func (m *Memory) AdvanceOrderStatus(_ context.Context, orderID string, from, to repo.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return true, nil
}

func (m *Memory) CountOrders(context.Context) ([]repo.StatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[repo.ServiceType]map[repo.OrderStatus]int64)
	for _, o := range m.orders {
		if counts[o.Type] == nil {
			counts[o.Type] = make(map[repo.OrderStatus]int64)
		}
		counts[o.Type][o.Status]++
	}
	var out []repo.StatusCount
	for typ, byStatus := range counts {
		for status, n := range byStatus {
			out = append(out, repo.StatusCount{Type: typ, Status: status, Count: n})
		}
	}
	return out, nil
}

func (m *Memory) UpsertProvider(_ context.Context, p repo.Provider) (*repo.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.providers[p.TelegramID]; ok {
		existing.Kind = p.Kind
		if p.Name != "" {
			existing.Name = p.Name
		}
		existing.UpdatedAt = time.Now()
		cp := *existing
		return &cp, nil
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := p
	m.providers[p.TelegramID] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) GetProvider(_ context.Context, telegramID int64) (*repo.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[telegramID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListActiveProviders(_ context.Context, kind repo.ProviderKind) ([]repo.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repo.Provider
	for _, p := range m.providers {
		if p.Kind == kind && p.IsActive && !p.IsBlocked {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *Memory) ApplyLedgerEntry(_ context.Context, entry repo.LedgerEntry) (*repo.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[entry.ProviderID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now()
	p.Balance += entry.Amount
	m.ledger = append(m.ledger, entry)
	cp := entry
	return &cp, nil
}

func (m *Memory) ListLedgerByProvider(_ context.Context, providerID int64) ([]repo.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repo.LedgerEntry
	for _, e := range m.ledger {
		if e.ProviderID == providerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) InsertAuctionTimer(_ context.Context, timer repo.AuctionTimer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTimer++
	timer.ID = m.nextTimer
	timer.CreatedAt = time.Now()
	m.timers = append(m.timers, timer)
	return nil
}

func (m *Memory) ListExpiredTimers(_ context.Context, now time.Time) ([]repo.AuctionTimer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repo.AuctionTimer
	for _, t := range m.timers {
		if !t.Processed && !t.ExpiresAt.After(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) MarkTimerProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.timers {
		if m.timers[i].ID == id {
			m.timers[i].Processed = true
			return nil
		}
	}
	return repo.ErrNotFound
}

func (m *Memory) UpsertPharmacyBid(_ context.Context, bid repo.PharmacyBid) (*repo.PharmacyBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bids[bid.OrderID] == nil {
		m.bids[bid.OrderID] = make(map[int64]*repo.PharmacyBid)
	}
	bid.CreatedAt = time.Now()
	cp := bid
	m.bids[bid.OrderID][bid.ProviderID] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) GetPharmacyBid(_ context.Context, orderID string, providerID int64) (*repo.PharmacyBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bid, ok := m.bids[orderID][providerID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *bid
	return &cp, nil
}
