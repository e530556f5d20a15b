package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"gorod-bot/internal/convo"
	"gorod-bot/internal/fanout"
	"gorod-bot/internal/metrics"
	"gorod-bot/internal/pricing"
	"gorod-bot/internal/repo"
	"gorod-bot/internal/tg"
)

// BotClient is the subset of the Telegram client used by the router.
type BotClient interface {
	SendMessage(chatID int64, text string, rows [][]tg.Button) (int, error)
	EditMessageText(chatID int64, messageID int, text string) error
	AnswerCallback(callbackID, text string) error
}

// CustomerSender delivers WhatsApp messages back to customers.
type CustomerSender interface {
	SendText(ctx context.Context, phone, text string) error
	SendButtons(ctx context.Context, phone, text string, options []string) error
}

// Config carries the commission schedule and claim gates.
type Config struct {
	TaxiCommission       int64
	PorterCommission     int64
	ShopperCommission    int64
	CafeCommissionPct    int64
	PharmacyDeliveryFee  int64
	MinDriverBalance     int64
	CustomPriceThreshold int64
	CancelRefundWindow   time.Duration
	PromoMode            bool
}

// Router processes provider-side Telegram events: claim buttons in the
// group chats and service commands in private chats. It implements
// tg.Processor.
type Router struct {
	repo    repo.Repository
	bot     BotClient
	wa      CustomerSender
	fanout  *fanout.Fanout
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
}

// New creates a Router.
func New(r repo.Repository, bot BotClient, wa CustomerSender, f *fanout.Fanout, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Router {
	return &Router{
		repo:    r,
		bot:     bot,
		wa:      wa,
		fanout:  f,
		metrics: m,
		logger:  logger.With("component", "provider"),
		cfg:     cfg,
	}
}

// Callback data prefixes used on the inline keyboards.
const (
	cbTaxiTake     = "taxi_take_"
	cbPorterTake   = "porter_take_"
	cbCafeAccept   = "cafe_accept_"
	cbShopTake     = "shop_take_"
	cbDeliveryTake = "delivery_take_"
	cbPharmBid     = "pharm_bid_"
	cbCafeReady    = "cafe_ready_"
	cbTaxiArrived  = "taxi_arrived_"
	cbTaxiFinish   = "taxi_finish_"
	cbTaxiCancel   = "taxi_cancel_"
)

// HandleProviderCallback implements tg.Processor.
func (r *Router) HandleProviderCallback(ctx context.Context, ev tg.CallbackEvent) error {
	switch {
	case strings.HasPrefix(ev.Data, cbTaxiTake):
		return r.claimRide(ctx, ev, strings.TrimPrefix(ev.Data, cbTaxiTake), r.cfg.TaxiCommission)
	case strings.HasPrefix(ev.Data, cbPorterTake):
		return r.claimRide(ctx, ev, strings.TrimPrefix(ev.Data, cbPorterTake), r.cfg.PorterCommission)
	case strings.HasPrefix(ev.Data, cbCafeAccept):
		return r.acceptCafe(ctx, ev, strings.TrimPrefix(ev.Data, cbCafeAccept))
	case strings.HasPrefix(ev.Data, cbShopTake):
		return r.claimShop(ctx, ev, strings.TrimPrefix(ev.Data, cbShopTake))
	case strings.HasPrefix(ev.Data, cbDeliveryTake):
		return r.claimDelivery(ctx, ev, strings.TrimPrefix(ev.Data, cbDeliveryTake))
	case strings.HasPrefix(ev.Data, cbPharmBid):
		return r.recordPharmacyBid(ctx, ev, strings.TrimPrefix(ev.Data, cbPharmBid))
	case strings.HasPrefix(ev.Data, cbCafeReady):
		return r.cafeReady(ctx, ev, strings.TrimPrefix(ev.Data, cbCafeReady))
	case strings.HasPrefix(ev.Data, cbTaxiArrived):
		return r.rideArrived(ctx, ev, strings.TrimPrefix(ev.Data, cbTaxiArrived))
	case strings.HasPrefix(ev.Data, cbTaxiFinish):
		return r.rideFinished(ctx, ev, strings.TrimPrefix(ev.Data, cbTaxiFinish))
	case strings.HasPrefix(ev.Data, cbTaxiCancel):
		return r.rideCancelled(ctx, ev, strings.TrimPrefix(ev.Data, cbTaxiCancel))
	}
	r.logger.Debug("unknown callback ignored", "data", ev.Data)
	return r.bot.AnswerCallback(ev.CallbackID, "")
}

// ensureProvider loads the provider account, creating a minimal record on
// first contact so new members of a pool can claim without a separate
// registration step.
func (r *Router) ensureProvider(ctx context.Context, ev tg.CallbackEvent, kind repo.ProviderKind) (*repo.Provider, error) {
	p, err := r.repo.GetProvider(ctx, ev.ActorID)
	if err == nil {
		if p.IsBlocked || !p.IsActive {
			_ = r.bot.AnswerCallback(ev.CallbackID, "Ваш аккаунт отключён. Обратитесь к администратору.")
			return nil, nil
		}
		return p, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("load provider %d: %w", ev.ActorID, err)
	}
	p, err = r.repo.UpsertProvider(ctx, repo.Provider{
		TelegramID: ev.ActorID,
		Kind:       kind,
		Name:       ev.ActorName,
		IsActive:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("register provider %d: %w", ev.ActorID, err)
	}
	return p, nil
}

// claimRide handles the taxi and porter take buttons. First press wins;
// everyone else gets a race-lost answer.
func (r *Router) claimRide(ctx context.Context, ev tg.CallbackEvent, orderID string, commission int64) error {
	driver, err := r.ensureProvider(ctx, ev, repo.KindDriver)
	if err != nil || driver == nil {
		return err
	}
	if driver.Balance < r.cfg.MinDriverBalance {
		return r.bot.AnswerCallback(ev.CallbackID, "Недостаточно средств на балансе. Пополните счёт.")
	}

	order, err := r.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return r.bot.AnswerCallback(ev.CallbackID, "Заказ не найден.")
		}
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	fee := pricing.DriverCommission(order.PriceTotal, commission, r.cfg.CustomPriceThreshold, r.cfg.PromoMode)
	won, err := r.repo.ClaimOrderDriver(ctx, orderID, driver.TelegramID, fee)
	if err != nil {
		return fmt.Errorf("claim order %s: %w", orderID, err)
	}
	if !won {
		r.metrics.RaceLost.WithLabelValues("ride_take").Inc()
		return r.bot.AnswerCallback(ev.CallbackID, "Заказ уже занят.")
	}
	r.metrics.OrderTransitions.WithLabelValues(string(order.Type), string(repo.StatusAccepted)).Inc()

	if err := r.chargeCommission(ctx, driver.TelegramID, orderID, fee); err != nil {
		r.logger.Error("failed charging commission", "error", err, "order_id", orderID, "driver", driver.TelegramID)
		r.metrics.Errors.WithLabelValues("provider_ledger").Inc()
	}

	r.markTaken(ev, order)
	_ = r.bot.AnswerCallback(ev.CallbackID, "Заказ ваш!")
	if _, err := r.bot.SendMessage(driver.TelegramID, r.rideBrief(order, fee), rideControls(orderID)); err != nil {
		r.logger.Warn("failed sending ride brief", "error", err, "driver", driver.TelegramID)
	}
	r.notifyCustomer(ctx, order.ClientPhone, fmt.Sprintf(
		"Исполнитель найден: %s. Он свяжется с вами или приедет по адресу. Номер заказа %s.",
		driverIntro(driver), order.ID))
	return nil
}

// acceptCafe handles the cafe accept button. Commission accrues as debt on
// the cafe balance when the order carries a known total.
func (r *Router) acceptCafe(ctx context.Context, ev tg.CallbackEvent, orderID string) error {
	cafe, err := r.ensureProvider(ctx, ev, repo.KindCafe)
	if err != nil || cafe == nil {
		return err
	}

	order, err := r.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return r.bot.AnswerCallback(ev.CallbackID, "Заказ не найден.")
		}
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	won, err := r.repo.ClaimOrderProvider(ctx, orderID, cafe.TelegramID)
	if err != nil {
		return fmt.Errorf("claim order %s: %w", orderID, err)
	}
	if !won {
		r.metrics.RaceLost.WithLabelValues("cafe_accept").Inc()
		return r.bot.AnswerCallback(ev.CallbackID, "Заказ уже принят другим кафе.")
	}
	r.metrics.OrderTransitions.WithLabelValues(string(order.Type), string(repo.StatusAccepted)).Inc()

	if debt := pricing.CafeCommission(order.PriceTotal, r.cfg.CafeCommissionPct, r.cfg.PromoMode); debt > 0 {
		entry := repo.LedgerEntry{
			ProviderID: cafe.TelegramID,
			OrderID:    &orderID,
			Action:     repo.LedgerCafeDebt,
			Amount:     -debt,
			Details:    fmt.Sprintf("комиссия %d%% по заказу %s", r.cfg.CafeCommissionPct, orderID),
		}
		if _, err := r.repo.ApplyLedgerEntry(ctx, entry); err != nil {
			r.logger.Error("failed recording cafe debt", "error", err, "order_id", orderID)
			r.metrics.Errors.WithLabelValues("provider_ledger").Inc()
		}
	}

	r.markTaken(ev, order)
	_ = r.bot.AnswerCallback(ev.CallbackID, "Заказ принят!")
	if _, err := r.bot.SendMessage(cafe.TelegramID, fanout.Summary(order)+"\n\nКогда заказ будет готов, нажмите кнопку.",
		[][]tg.Button{{{Text: "Заказ готов", Data: cbCafeReady + orderID}}}); err != nil {
		r.logger.Warn("failed sending cafe brief", "error", err, "cafe", cafe.TelegramID)
	}
	if err := r.fanout.NotifyDelivery(ctx, order); err != nil {
		r.logger.Error("failed announcing delivery", "error", err, "order_id", orderID)
	}
	r.notifyCustomer(ctx, order.ClientPhone, fmt.Sprintf("Кафе приняло заказ %s и уже готовит его.", order.ID))
	return nil
}

// cafeReady forwards the kitchen-ready signal to the customer.
func (r *Router) cafeReady(ctx context.Context, ev tg.CallbackEvent, orderID string) error {
	order, err := r.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return r.bot.AnswerCallback(ev.CallbackID, "Заказ не найден.")
		}
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order.ProviderID == nil || *order.ProviderID != ev.ActorID {
		return r.bot.AnswerCallback(ev.CallbackID, "Этот заказ принят не вами.")
	}
	r.notifyCustomer(ctx, order.ClientPhone, fmt.Sprintf("Заказ %s готов, ждём курьера.", order.ID))
	return r.bot.AnswerCallback(ev.CallbackID, "Клиент уведомлён.")
}

// claimShop handles the shopping take button.
func (r *Router) claimShop(ctx context.Context, ev tg.CallbackEvent, orderID string) error {
	shopper, err := r.ensureProvider(ctx, ev, repo.KindShopper)
	if err != nil || shopper == nil {
		return err
	}
	if shopper.Balance < r.cfg.MinDriverBalance {
		return r.bot.AnswerCallback(ev.CallbackID, "Недостаточно средств на балансе. Пополните счёт.")
	}

	order, err := r.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return r.bot.AnswerCallback(ev.CallbackID, "Заказ не найден.")
		}
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	won, err := r.repo.ClaimOrderProvider(ctx, orderID, shopper.TelegramID)
	if err != nil {
		return fmt.Errorf("claim order %s: %w", orderID, err)
	}
	if !won {
		r.metrics.RaceLost.WithLabelValues("shop_take").Inc()
		return r.bot.AnswerCallback(ev.CallbackID, "Заказ уже занят.")
	}
	r.metrics.OrderTransitions.WithLabelValues(string(order.Type), string(repo.StatusAccepted)).Inc()

	fee := pricing.DriverCommission(order.PriceTotal, r.cfg.ShopperCommission, r.cfg.CustomPriceThreshold, r.cfg.PromoMode)
	if err := r.chargeCommission(ctx, shopper.TelegramID, orderID, fee); err != nil {
		r.logger.Error("failed charging commission", "error", err, "order_id", orderID, "shopper", shopper.TelegramID)
		r.metrics.Errors.WithLabelValues("provider_ledger").Inc()
	}

	r.markTaken(ev, order)
	_ = r.bot.AnswerCallback(ev.CallbackID, "Заказ ваш!")
	if _, err := r.bot.SendMessage(shopper.TelegramID, fanout.Summary(order)+"\nКлиент: "+order.ClientPhone, nil); err != nil {
		r.logger.Warn("failed sending shop brief", "error", err, "shopper", shopper.TelegramID)
	}
	r.notifyCustomer(ctx, order.ClientPhone, fmt.Sprintf("Закупщик найден, заказ %s в работе.", order.ID))
	return nil
}

// claimDelivery assigns a courier to an accepted cafe or pharmacy order.
func (r *Router) claimDelivery(ctx context.Context, ev tg.CallbackEvent, orderID string) error {
	driver, err := r.ensureProvider(ctx, ev, repo.KindDriver)
	if err != nil || driver == nil {
		return err
	}
	if driver.Balance < r.cfg.MinDriverBalance {
		return r.bot.AnswerCallback(ev.CallbackID, "Недостаточно средств на балансе. Пополните счёт.")
	}

	order, err := r.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return r.bot.AnswerCallback(ev.CallbackID, "Заказ не найден.")
		}
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	won, err := r.repo.AssignDeliveryDriver(ctx, orderID, driver.TelegramID)
	if err != nil {
		return fmt.Errorf("assign delivery %s: %w", orderID, err)
	}
	if !won {
		r.metrics.RaceLost.WithLabelValues("delivery_take").Inc()
		return r.bot.AnswerCallback(ev.CallbackID, "Доставка уже занята.")
	}
	r.metrics.OrderTransitions.WithLabelValues(string(order.Type), string(repo.StatusInProgress)).Inc()

	fee := pricing.DriverCommission(0, r.cfg.TaxiCommission, 0, r.cfg.PromoMode)
	if err := r.chargeCommission(ctx, driver.TelegramID, orderID, fee); err != nil {
		r.logger.Error("failed charging commission", "error", err, "order_id", orderID, "driver", driver.TelegramID)
		r.metrics.Errors.WithLabelValues("provider_ledger").Inc()
	}

	r.markTaken(ev, order)
	_ = r.bot.AnswerCallback(ev.CallbackID, "Доставка ваша!")
	if _, err := r.bot.SendMessage(driver.TelegramID, fanout.Summary(order)+"\nКлиент: "+order.ClientPhone, nil); err != nil {
		r.logger.Warn("failed sending delivery brief", "error", err, "driver", driver.TelegramID)
	}
	r.notifyCustomer(ctx, order.ClientPhone, fmt.Sprintf("Курьер найден, заказ %s едет к вам.", order.ID))
	return nil
}

// recordPharmacyBid stores a pharmacy quote and forwards it to the customer
// for confirmation. The payload is "{orderID}_{price}".
func (r *Router) recordPharmacyBid(ctx context.Context, ev tg.CallbackEvent, payload string) error {
	sep := strings.LastIndex(payload, "_")
	if sep <= 0 {
		return r.bot.AnswerCallback(ev.CallbackID, "Некорректные данные.")
	}
	orderID := payload[:sep]
	price, err := strconv.ParseInt(payload[sep+1:], 10, 64)
	if err != nil || price <= 0 {
		return r.bot.AnswerCallback(ev.CallbackID, "Некорректная цена.")
	}

	pharmacy, err := r.ensureProvider(ctx, ev, repo.KindPharmacy)
	if err != nil || pharmacy == nil {
		return err
	}

	order, err := r.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return r.bot.AnswerCallback(ev.CallbackID, "Заказ не найден.")
		}
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order.Status != repo.StatusPending {
		return r.bot.AnswerCallback(ev.CallbackID, "Заказ уже недоступен.")
	}

	if _, err := r.repo.UpsertPharmacyBid(ctx, repo.PharmacyBid{
		OrderID:    orderID,
		ProviderID: pharmacy.TelegramID,
		Price:      price,
	}); err != nil {
		return fmt.Errorf("record bid for %s: %w", orderID, err)
	}

	draft := convo.Draft{
		Flow: repo.ServicePharmacy,
		Pharmacy: &convo.PharmacyDraft{
			OrderID:    orderID,
			ProviderID: pharmacy.TelegramID,
			Price:      price,
		},
	}
	raw, err := draft.Marshal()
	if err != nil {
		return fmt.Errorf("marshal quote draft: %w", err)
	}
	if err := r.repo.SetUserState(ctx, order.ClientPhone, repo.StatePharmacyConfirm, raw); err != nil {
		return fmt.Errorf("stage quote for %s: %w", order.ClientPhone, err)
	}
	if err := r.wa.SendButtons(ctx, order.ClientPhone, fmt.Sprintf(
		"По заказу %s аптека предлагает %d ₽ (+%d ₽ доставка). Берём?",
		order.ID, price, r.cfg.PharmacyDeliveryFee), []string{"Да", "Нет"}); err != nil {
		r.logger.Error("failed forwarding quote", "error", err, "order_id", orderID)
		r.metrics.Errors.WithLabelValues("provider_notify").Inc()
	}
	return r.bot.AnswerCallback(ev.CallbackID, "Предложение отправлено клиенту.")
}

// rideArrived moves an accepted ride to in progress.
func (r *Router) rideArrived(ctx context.Context, ev tg.CallbackEvent, orderID string) error {
	order, err := r.loadOwnRide(ctx, ev, orderID)
	if err != nil || order == nil {
		return err
	}
	moved, err := r.repo.AdvanceOrderStatus(ctx, orderID, repo.StatusAccepted, repo.StatusInProgress)
	if err != nil {
		return fmt.Errorf("advance order %s: %w", orderID, err)
	}
	if !moved {
		return r.bot.AnswerCallback(ev.CallbackID, "Заказ уже в другом статусе.")
	}
	r.metrics.OrderTransitions.WithLabelValues(string(order.Type), string(repo.StatusInProgress)).Inc()
	r.notifyCustomer(ctx, order.ClientPhone, fmt.Sprintf("Водитель на месте, заказ %s.", order.ID))
	return r.bot.AnswerCallback(ev.CallbackID, "Клиент уведомлён.")
}

// rideFinished completes an in-progress ride.
func (r *Router) rideFinished(ctx context.Context, ev tg.CallbackEvent, orderID string) error {
	order, err := r.loadOwnRide(ctx, ev, orderID)
	if err != nil || order == nil {
		return err
	}
	moved, err := r.repo.AdvanceOrderStatus(ctx, orderID, repo.StatusInProgress, repo.StatusCompleted)
	if err != nil {
		return fmt.Errorf("advance order %s: %w", orderID, err)
	}
	if !moved {
		return r.bot.AnswerCallback(ev.CallbackID, "Заказ уже в другом статусе.")
	}
	r.metrics.OrderTransitions.WithLabelValues(string(order.Type), string(repo.StatusCompleted)).Inc()
	r.notifyCustomer(ctx, order.ClientPhone, fmt.Sprintf("Поездка %s завершена. Спасибо, что выбрали нас!", order.ID))
	return r.bot.AnswerCallback(ev.CallbackID, "Заказ завершён.")
}

// rideCancelled cancels an accepted ride on the driver's side. Within the
// refund window the commission is returned; in either case the customer is
// asked to reorder, because a claimed order never returns to the pool.
func (r *Router) rideCancelled(ctx context.Context, ev tg.CallbackEvent, orderID string) error {
	order, err := r.loadOwnRide(ctx, ev, orderID)
	if err != nil || order == nil {
		return err
	}
	moved, err := r.repo.AdvanceOrderStatus(ctx, orderID, repo.StatusAccepted, repo.StatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	if !moved {
		return r.bot.AnswerCallback(ev.CallbackID, "Отмена недоступна: заказ уже в другом статусе.")
	}
	r.metrics.OrderTransitions.WithLabelValues(string(order.Type), string(repo.StatusCancelled)).Inc()

	// Refund the commission as stored on the order at claim time, not a
	// recomputed one: porter and taxi rates differ.
	refunded := false
	if order.AcceptedAt != nil && time.Since(*order.AcceptedAt) <= r.cfg.CancelRefundWindow {
		if fee := order.Commission; fee > 0 {
			entry := repo.LedgerEntry{
				ProviderID: ev.ActorID,
				OrderID:    &orderID,
				Action:     repo.LedgerRefund,
				Amount:     fee,
				Details:    fmt.Sprintf("возврат комиссии по заказу %s", orderID),
			}
			if _, err := r.repo.ApplyLedgerEntry(ctx, entry); err != nil {
				r.logger.Error("failed refunding commission", "error", err, "order_id", orderID)
				r.metrics.Errors.WithLabelValues("provider_ledger").Inc()
			} else {
				refunded = true
			}
		}
	}

	r.notifyCustomer(ctx, order.ClientPhone, fmt.Sprintf(
		"К сожалению, водитель отменил заказ %s. Оформите заказ заново, пожалуйста.", order.ID))
	if refunded {
		return r.bot.AnswerCallback(ev.CallbackID, "Заказ отменён, комиссия возвращена.")
	}
	return r.bot.AnswerCallback(ev.CallbackID, "Заказ отменён.")
}

// loadOwnRide loads the order and checks the actor is its assigned driver.
// A nil order with nil error means the answer went out already.
func (r *Router) loadOwnRide(ctx context.Context, ev tg.CallbackEvent, orderID string) (*repo.Order, error) {
	order, err := r.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, r.bot.AnswerCallback(ev.CallbackID, "Заказ не найден.")
		}
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order.DriverID == nil || *order.DriverID != ev.ActorID {
		r.metrics.Errors.WithLabelValues("provider_auth").Inc()
		return nil, r.bot.AnswerCallback(ev.CallbackID, "Этот заказ закреплён не за вами.")
	}
	return order, nil
}

// chargeCommission writes the commission ledger entry, debiting the balance.
func (r *Router) chargeCommission(ctx context.Context, providerID int64, orderID string, fee int64) error {
	if fee <= 0 {
		return nil
	}
	entry := repo.LedgerEntry{
		ProviderID: providerID,
		OrderID:    &orderID,
		Action:     repo.LedgerCommission,
		Amount:     -fee,
		Details:    fmt.Sprintf("комиссия по заказу %s", orderID),
	}
	_, err := r.repo.ApplyLedgerEntry(ctx, entry)
	return err
}

// markTaken rewrites the group announcement so the pool sees who claimed it.
func (r *Router) markTaken(ev tg.CallbackEvent, order *repo.Order) {
	if ev.ChatID == 0 || ev.MessageID == 0 {
		return
	}
	text := fanout.Summary(order) + fmt.Sprintf("\n\n✅ Взял: %s", ev.ActorName)
	if err := r.bot.EditMessageText(ev.ChatID, ev.MessageID, text); err != nil {
		r.logger.Warn("failed editing group message", "error", err, "order_id", order.ID)
	}
}

func (r *Router) notifyCustomer(ctx context.Context, phone, text string) {
	if err := r.wa.SendText(ctx, phone, text); err != nil {
		r.logger.Error("failed notifying customer", "error", err, "phone", phone)
		r.metrics.Errors.WithLabelValues("provider_notify").Inc()
	}
}

func (r *Router) rideBrief(order *repo.Order, fee int64) string {
	var b strings.Builder
	b.WriteString(fanout.Summary(order))
	b.WriteString("\nКлиент: " + order.ClientPhone)
	if fee > 0 {
		fmt.Fprintf(&b, "\nСписана комиссия: %d ₽", fee)
	}
	return b.String()
}

func rideControls(orderID string) [][]tg.Button {
	return [][]tg.Button{
		{
			{Text: "На месте", Data: cbTaxiArrived + orderID},
			{Text: "Завершить", Data: cbTaxiFinish + orderID},
		},
		{
			{Text: "Отменить", Data: cbTaxiCancel + orderID},
		},
	}
}

func driverIntro(p *repo.Provider) string {
	parts := []string{p.Name}
	if p.Vehicle != "" {
		parts = append(parts, p.Vehicle)
	}
	if p.Plate != "" {
		parts = append(parts, p.Plate)
	}
	return strings.Join(parts, ", ")
}
