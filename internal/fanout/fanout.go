package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorod-bot/internal/metrics"
	"gorod-bot/internal/repo"
	"gorod-bot/internal/tg"
)

// GroupSender delivers messages and photos to provider chats.
type GroupSender interface {
	SendMessage(chatID int64, text string, rows [][]tg.Button) (int, error)
	SendPhoto(chatID int64, photoURL, caption string, rows [][]tg.Button) (int, error)
}

// ErrNoShopper reports that no active shopper account exists to receive a
// shop order.
var ErrNoShopper = errors.New("no active shopper")

// Config carries the group routing table and per-service expiry thresholds.
// ShopGroupID is only a fallback: shop orders go to the assigned shopper's
// private chat.
type Config struct {
	TaxiGroupID     int64
	CafeGroupID     int64
	PharmacyGroupID int64
	PorterGroupID   int64
	ShopGroupID     int64

	CafeTimeout     time.Duration
	PharmacyTimeout time.Duration
	TaxiTimeout     time.Duration
}

// Timeout returns the pending-order expiry threshold for a service type.
// Porter shares the taxi threshold; shop shares the cafe threshold.
func (c Config) Timeout(service repo.ServiceType) time.Duration {
	switch service {
	case repo.ServicePharmacy:
		return c.PharmacyTimeout
	case repo.ServiceTaxi, repo.ServicePorter:
		return c.TaxiTimeout
	default:
		return c.CafeTimeout
	}
}

// Fanout announces new orders to provider pools and schedules their expiry.
type Fanout struct {
	repo    repo.Repository
	sender  GroupSender
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Fanout.
func New(r repo.Repository, sender GroupSender, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Fanout {
	return &Fanout{
		repo:    r,
		sender:  sender,
		cfg:     cfg,
		logger:  logger.With("component", "fanout"),
		metrics: m,
	}
}

// pharmacy quote options offered to the pool as preset callback buttons
var pharmacyQuotes = []int64{100, 200, 300, 500}

// NotifyNewOrder writes the auction timer for the order, then announces it
// to the matching provider pool. The timer is persisted before the send on
// purpose: a failed notification leaves the order pending and the sweeper
// expires it instead of letting it hang silently.
func (f *Fanout) NotifyNewOrder(ctx context.Context, order *repo.Order) error {
	timer := repo.AuctionTimer{
		OrderID:     order.ID,
		ServiceType: order.Type,
		ExpiresAt:   time.Now().Add(f.cfg.Timeout(order.Type)),
	}
	if err := f.repo.InsertAuctionTimer(ctx, timer); err != nil {
		return fmt.Errorf("schedule expiry for %s: %w", order.ID, err)
	}

	if order.Type == repo.ServiceShop {
		return f.notifyShopper(ctx, order)
	}

	chatID, rows := f.poolFor(order)
	if chatID == 0 {
		f.logger.Warn("no group configured for service", "type", order.Type, "order_id", order.ID)
		return nil
	}

	if url := imageURL(order); url != "" {
		if _, err := f.sender.SendPhoto(chatID, url, Summary(order), rows); err != nil {
			f.logger.Error("failed notifying provider pool", "error", err, "order_id", order.ID, "type", order.Type)
			f.metrics.Errors.WithLabelValues("fanout").Inc()
		}
		return nil
	}

	if _, err := f.sender.SendMessage(chatID, Summary(order), rows); err != nil {
		// Not fatal: the order stays pending and the sweeper expires it.
		f.logger.Error("failed notifying provider pool", "error", err, "order_id", order.ID, "type", order.Type)
		f.metrics.Errors.WithLabelValues("fanout").Inc()
		return nil
	}
	return nil
}

// notifyShopper sends a shop order to the first active shopper's private
// chat. Without one the shop group, when configured, receives the
// announcement instead; otherwise the caller gets ErrNoShopper.
func (f *Fanout) notifyShopper(ctx context.Context, order *repo.Order) error {
	rows := [][]tg.Button{{{Text: "Взять заказ", Data: "shop_take_" + order.ID}}}
	shoppers, err := f.repo.ListActiveProviders(ctx, repo.KindShopper)
	if err != nil {
		return fmt.Errorf("list shoppers for %s: %w", order.ID, err)
	}
	if len(shoppers) > 0 {
		text := Summary(order) + "\nКлиент: " + order.ClientPhone
		if _, err := f.sender.SendMessage(shoppers[0].TelegramID, text, rows); err != nil {
			f.logger.Error("failed notifying shopper", "error", err, "order_id", order.ID, "shopper", shoppers[0].TelegramID)
			f.metrics.Errors.WithLabelValues("fanout").Inc()
		}
		return nil
	}
	if f.cfg.ShopGroupID != 0 {
		if _, err := f.sender.SendMessage(f.cfg.ShopGroupID, Summary(order), rows); err != nil {
			f.logger.Error("failed notifying shop group", "error", err, "order_id", order.ID)
			f.metrics.Errors.WithLabelValues("fanout").Inc()
		}
		return nil
	}
	f.logger.Warn("no active shopper for order", "order_id", order.ID)
	return ErrNoShopper
}

// NotifyDelivery announces an accepted cafe or pharmacy order to the taxi
// pool for delivery pickup.
func (f *Fanout) NotifyDelivery(ctx context.Context, order *repo.Order) error {
	if f.cfg.TaxiGroupID == 0 {
		f.logger.Warn("taxi group not configured, delivery not announced", "order_id", order.ID)
		return nil
	}
	text := fmt.Sprintf("🚕 Доставка по заказу %s\n%s", order.ID, detailLines(order))
	if order.PriceTotal > 0 {
		text += fmt.Sprintf("Цена: %d ₽\n", order.PriceTotal)
	}
	rows := [][]tg.Button{{{Text: "Взять доставку", Data: "delivery_take_" + order.ID}}}
	if _, err := f.sender.SendMessage(f.cfg.TaxiGroupID, text, rows); err != nil {
		f.logger.Error("failed notifying taxi pool for delivery", "error", err, "order_id", order.ID)
		f.metrics.Errors.WithLabelValues("fanout").Inc()
		return nil
	}
	return nil
}

func (f *Fanout) poolFor(order *repo.Order) (int64, [][]tg.Button) {
	switch order.Type {
	case repo.ServiceTaxi:
		return f.cfg.TaxiGroupID, [][]tg.Button{{{Text: "Взять заказ", Data: "taxi_take_" + order.ID}}}
	case repo.ServicePorter:
		return f.cfg.PorterGroupID, [][]tg.Button{{{Text: "Взять заказ", Data: "porter_take_" + order.ID}}}
	case repo.ServiceCafe:
		return f.cfg.CafeGroupID, [][]tg.Button{{{Text: "Принять заказ", Data: "cafe_accept_" + order.ID}}}
	case repo.ServicePharmacy:
		var row []tg.Button
		for _, price := range pharmacyQuotes {
			row = append(row, tg.Button{
				Text: fmt.Sprintf("%d ₽", price),
				Data: fmt.Sprintf("pharm_bid_%s_%d", order.ID, price),
			})
		}
		return f.cfg.PharmacyGroupID, [][]tg.Button{row}
	}
	return 0, nil
}

var serviceTitles = map[repo.ServiceType]string{
	repo.ServiceCafe:     "🍔 Заказ из кафе",
	repo.ServiceShop:     "🛒 Заказ из магазина",
	repo.ServicePharmacy: "💊 Заказ из аптеки",
	repo.ServiceTaxi:     "🚕 Заказ такси",
	repo.ServicePorter:   "📦 Заказ грузоперевозки",
}

// Summary renders an order announcement for a provider group.
func Summary(order *repo.Order) string {
	var b strings.Builder
	b.WriteString(serviceTitles[order.Type])
	b.WriteString(" " + order.ID + "\n")
	b.WriteString(detailLines(order))
	if order.PriceTotal > 0 {
		fmt.Fprintf(&b, "Цена: %d ₽\n", order.PriceTotal)
	}
	return strings.TrimRight(b.String(), "\n")
}

var detailLabels = []struct {
	key   string
	label string
}{
	{"items", "Заказ"},
	{"list", "Список"},
	{"rx", "Запрос"},
	{"cargo", "Груз"},
	{"from", "Откуда"},
	{"to", "Куда"},
	{"address", "Адрес"},
}

// imageURL extracts the attached photo reference from the order details,
// set when a customer sends a prescription photo.
func imageURL(order *repo.Order) string {
	var details map[string]any
	if err := json.Unmarshal(order.Details, &details); err != nil {
		return ""
	}
	if s, ok := details["image_url"].(string); ok {
		return s
	}
	return ""
}

func detailLines(order *repo.Order) string {
	var details map[string]any
	if err := json.Unmarshal(order.Details, &details); err != nil {
		return ""
	}
	var b strings.Builder
	for _, dl := range detailLabels {
		if val, ok := details[dl.key]; ok {
			if s, ok := val.(string); ok && s != "" {
				fmt.Fprintf(&b, "%s: %s\n", dl.label, s)
			}
		}
	}
	return b.String()
}
