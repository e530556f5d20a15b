package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gorod-bot/internal/fanout"
	"gorod-bot/internal/repo"
)

// newOrderID builds the human-readable order id providers read aloud.
func newOrderID() string {
	return "GO" + time.Now().Format("060102150405") + strings.ToUpper(uuid.NewString()[:4])
}

// createOrder persists a pending order from the draft and fans it out to
// the matching provider pool.
func (e *Engine) createOrder(ctx context.Context, user *repo.User, draft Draft, price int64) (*repo.Order, error) {
	details := map[string]string{}
	switch draft.Flow {
	case repo.ServiceCafe:
		details["items"] = draft.Cafe.Items
		details["address"] = draft.Cafe.Address
	case repo.ServiceShop:
		details["list"] = draft.Shop.List
		details["address"] = draft.Shop.Address
	case repo.ServicePharmacy:
		details["rx"] = draft.Pharmacy.Rx
		details["image_url"] = draft.Pharmacy.ImageURL
		details["address"] = draft.Pharmacy.Address
	case repo.ServiceTaxi:
		details["from"] = draft.Taxi.From
		details["to"] = draft.Taxi.To
	case repo.ServicePorter:
		details["cargo"] = draft.Porter.Cargo
		details["from"] = draft.Porter.From
		details["to"] = draft.Porter.To
	default:
		return nil, fmt.Errorf("create order: unknown flow %q", draft.Flow)
	}

	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal order details: %w", err)
	}

	order := repo.Order{
		ID:          newOrderID(),
		Type:        draft.Flow,
		Status:      repo.StatusPending,
		ClientPhone: user.Phone,
		Details:     raw,
		PriceTotal:  price,
	}
	inserted, err := e.repo.InsertOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	e.metrics.OrdersCreated.WithLabelValues(string(draft.Flow)).Inc()

	if err := e.fanout.NotifyNewOrder(ctx, inserted); err != nil {
		if errors.Is(err, fanout.ErrNoShopper) {
			// The caller tells the customer; the order must not linger.
			return inserted, err
		}
		e.logger.Error("failed fanning out order", "error", err, "order_id", inserted.ID)
		e.metrics.Errors.WithLabelValues("convo_fanout").Inc()
	}
	return inserted, nil
}

// confirmSummary renders the pre-submission recap for confirmable flows.
func confirmSummary(draft Draft) string {
	var b strings.Builder
	b.WriteString("Проверьте заказ:\n")
	switch draft.Flow {
	case repo.ServiceCafe:
		fmt.Fprintf(&b, "Заказ: %s\nАдрес: %s\n", draft.Cafe.Items, draft.Cafe.Address)
	case repo.ServiceShop:
		fmt.Fprintf(&b, "Список: %s\nАдрес: %s\n", draft.Shop.List, draft.Shop.Address)
	}
	b.WriteString("Всё верно?")
	return b.String()
}
