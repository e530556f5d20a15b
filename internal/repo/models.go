package repo

import (
	"encoding/json"
	"time"
)

// ConvoState is the per-customer conversation state stored on the user row.
type ConvoState string

const (
	StateIdle            ConvoState = "idle"
	StateCafeOrder       ConvoState = "cafe_order"
	StateCafeAddress     ConvoState = "cafe_address"
	StateShopList        ConvoState = "shop_list"
	StateShopAddress     ConvoState = "shop_address"
	StatePharmacyWaitRx  ConvoState = "pharmacy_wait_rx"
	StatePharmacyConfirm ConvoState = "pharmacy_confirm"
	StatePharmacyAddress ConvoState = "pharmacy_address"
	StateTaxiRoute       ConvoState = "taxi_route"
	StateTaxiPriceChoice ConvoState = "taxi_price_choice"
	StateTaxiCustomPrice ConvoState = "taxi_custom_price"
	StatePorterCargo     ConvoState = "porter_cargo"
	StatePorterRoute     ConvoState = "porter_route"
	StateConfirmOrder    ConvoState = "confirm_order"
)

// Known reports whether the state is one of the enumerated conversation states.
func (s ConvoState) Known() bool {
	switch s {
	case StateIdle, StateCafeOrder, StateCafeAddress, StateShopList, StateShopAddress,
		StatePharmacyWaitRx, StatePharmacyConfirm, StatePharmacyAddress,
		StateTaxiRoute, StateTaxiPriceChoice, StateTaxiCustomPrice,
		StatePorterCargo, StatePorterRoute, StateConfirmOrder:
		return true
	}
	return false
}

// ServiceType identifies which service flow produced an order.
type ServiceType string

const (
	ServiceCafe     ServiceType = "cafe"
	ServiceShop     ServiceType = "shop"
	ServicePharmacy ServiceType = "pharmacy"
	ServiceTaxi     ServiceType = "taxi"
	ServicePorter   ServiceType = "porter"
)

// OrderStatus moves forward only; cancelled is terminal and reachable
// from pending or accepted.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusAccepted   OrderStatus = "accepted"
	StatusInProgress OrderStatus = "in_progress"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

// ProviderKind distinguishes the service-side account types.
type ProviderKind string

const (
	KindDriver   ProviderKind = "driver"
	KindCafe     ProviderKind = "cafe"
	KindPharmacy ProviderKind = "pharmacy"
	KindShopper  ProviderKind = "shopper"
)

// Ledger action tags.
const (
	LedgerCommission = "commission"
	LedgerRefund     = "refund"
	LedgerTopup      = "topup"
	LedgerCafeDebt   = "cafe_debt"
)

// User represents the users table row, keyed by phone number.
type User struct {
	Phone        string
	Name         string
	CurrentState ConvoState
	TempData     json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Order represents a row in the orders table.
type Order struct {
	ID          string
	Type        ServiceType
	Status      OrderStatus
	ClientPhone string
	Details     json.RawMessage
	PriceTotal  int64
	Commission  int64
	ProviderID  *int64
	DriverID    *int64
	AcceptedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Provider represents a service-side account, keyed by Telegram id.
type Provider struct {
	TelegramID        int64
	Kind              ProviderKind
	Name              string
	Phone             string
	Vehicle           string
	Plate             string
	Address           string
	CommissionPercent int
	Balance           int64
	IsActive          bool
	IsBlocked         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LedgerEntry is an append-only record justifying a balance change.
type LedgerEntry struct {
	ID         string
	ProviderID int64
	OrderID    *string
	Action     string
	Amount     int64
	Details    string
	CreatedAt  time.Time
}

// AuctionTimer schedules the expiry sweep for a fanned-out order.
type AuctionTimer struct {
	ID          int64
	OrderID     string
	ServiceType ServiceType
	ExpiresAt   time.Time
	Processed   bool
	CreatedAt   time.Time
}

// PharmacyBid is a price quote from a pharmacy awaiting customer confirmation.
type PharmacyBid struct {
	ID         int64
	OrderID    string
	ProviderID int64
	Price      int64
	CreatedAt  time.Time
}

// StatusCount aggregates orders per service type and status.
type StatusCount struct {
	Type   ServiceType
	Status OrderStatus
	Count  int64
}
