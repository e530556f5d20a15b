package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorod-bot/internal/cache"
	"gorod-bot/internal/fanout"
	"gorod-bot/internal/metrics"
	"gorod-bot/internal/pricing"
	"gorod-bot/internal/repo"
	"gorod-bot/internal/tg"
	"gorod-bot/internal/wa"
)

// Sender delivers replies back to the customer channel.
type Sender interface {
	SendText(ctx context.Context, phone, text string) error
	SendButtons(ctx context.Context, phone, text string, options []string) error
}

// ProviderNotifier delivers direct notices to provider chats, used when a
// customer declines a quote.
type ProviderNotifier interface {
	SendMessage(chatID int64, text string, rows [][]tg.Button) (int, error)
}

// EngineConfig carries flow tuning injected at construction.
type EngineConfig struct {
	PharmacyDeliveryFee int64
	IdempotencyTTL      time.Duration
}

// Engine routes each inbound customer message through the per-user
// conversation state machine. Every turn persists the next state together
// with the flow draft before the reply is considered delivered, so a crash
// cannot leave stored state behind what the customer last saw.
type Engine struct {
	repo      repo.Repository
	sender    Sender
	notifier  ProviderNotifier
	fanout    *fanout.Fanout
	estimator *pricing.Estimator
	cache     *cache.Redis
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       EngineConfig
}

// New creates a conversation engine.
func New(r repo.Repository, sender Sender, notifier ProviderNotifier, f *fanout.Fanout, est *pricing.Estimator, redis *cache.Redis, m *metrics.Metrics, logger *slog.Logger, cfg EngineConfig) *Engine {
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 10 * time.Minute
	}
	return &Engine{
		repo:      r,
		sender:    sender,
		notifier:  notifier,
		fanout:    f,
		estimator: est,
		cache:     redis,
		metrics:   m,
		logger:    logger.With("component", "convo"),
		cfg:       cfg,
	}
}

// turn is the outcome of one conversational exchange.
type turn struct {
	reply   string
	options []string
	next    repo.ConvoState
	draft   Draft
}

const msgGenericFailure = "Что-то пошло не так, попробуйте ещё раз чуть позже."

const menuText = `Здравствуйте! Я бот заказов «GO». Чем помочь?
1. 🍔 Еда из кафе
2. 🛒 Покупки из магазина
3. 💊 Лекарства из аптеки
4. 🚕 Такси
5. 📦 Грузоперевозка

Отправьте номер услуги.`

// HandleCustomerMessage implements wa.Processor.
func (e *Engine) HandleCustomerMessage(ctx context.Context, msg wa.Message) error {
	if e.cache != nil && msg.MessageID != "" {
		fresh, err := e.cache.Acquire(ctx, "idem:wa:"+msg.MessageID, e.cfg.IdempotencyTTL)
		if err != nil {
			e.logger.Warn("idempotency check unavailable", "error", err)
		} else if !fresh {
			e.logger.Debug("duplicate delivery dropped", "message_id", msg.MessageID)
			return nil
		}
	}

	user, err := e.repo.GetOrCreateUser(ctx, msg.Phone, msg.Name)
	if err != nil {
		e.replyText(ctx, msg.Phone, msgGenericFailure)
		return fmt.Errorf("load user %s: %w", msg.Phone, err)
	}

	state := user.CurrentState
	draft := UnmarshalDraft(user.TempData)
	if !state.Known() {
		// Unknown stored state fails closed to the menu.
		e.logger.Warn("unknown conversation state, resetting", "phone", user.Phone, "state", state)
		state = repo.StateIdle
		draft = Draft{}
	}

	if msg.Voice {
		return e.finish(ctx, user, turn{
			reply: "Голосовые сообщения пока не поддерживаются, напишите текстом, пожалуйста.",
			next:  state,
			draft: draft,
		})
	}

	if state != repo.StateIdle && isCancelWord(msg.Text) {
		return e.finish(ctx, user, turn{
			reply: "Действие отменено.\n\n" + menuText,
			next:  repo.StateIdle,
		})
	}

	t, err := e.dispatch(ctx, user, state, draft, msg)
	if err != nil {
		// Persist the pre-turn state so the stored conversation matches
		// what the customer last saw, then surface a recovery prompt.
		if perr := e.persist(ctx, user.Phone, state, draft); perr != nil {
			e.logger.Error("failed restoring state after handler error", "error", perr, "phone", user.Phone)
		}
		e.replyText(ctx, msg.Phone, msgGenericFailure)
		return err
	}
	return e.finish(ctx, user, t)
}

func (e *Engine) dispatch(ctx context.Context, user *repo.User, state repo.ConvoState, draft Draft, msg wa.Message) (turn, error) {
	switch state {
	case repo.StateIdle:
		return e.handleIdle(msg), nil
	case repo.StateCafeOrder, repo.StateCafeAddress:
		return e.handleCafe(state, draft, msg), nil
	case repo.StateShopList, repo.StateShopAddress:
		return e.handleShop(state, draft, msg), nil
	case repo.StatePharmacyWaitRx, repo.StatePharmacyAddress:
		return e.handlePharmacy(ctx, user, state, draft, msg)
	case repo.StatePharmacyConfirm:
		return e.handlePharmacyConfirm(ctx, user, draft, msg)
	case repo.StateTaxiRoute, repo.StateTaxiPriceChoice, repo.StateTaxiCustomPrice:
		return e.handleTaxi(ctx, user, state, draft, msg)
	case repo.StatePorterCargo, repo.StatePorterRoute:
		return e.handlePorter(ctx, user, state, draft, msg)
	case repo.StateConfirmOrder:
		return e.handleConfirmOrder(ctx, user, draft, msg)
	}
	// Unreachable for known states; fail closed anyway.
	return turn{reply: menuText, next: repo.StateIdle}, nil
}

func (e *Engine) handleIdle(msg wa.Message) turn {
	text := strings.ToLower(strings.TrimSpace(msg.Text))
	switch {
	case mentions(text, "1", "кафе", "еда", "покушать"):
		return turn{
			reply: "Что закажем? Напишите блюда и количество одним сообщением.",
			next:  repo.StateCafeOrder,
			draft: Draft{Flow: repo.ServiceCafe, Cafe: &CafeDraft{}},
		}
	case mentions(text, "2", "магазин", "продукты", "покупки"):
		return turn{
			reply: "Пришлите список покупок одним сообщением.",
			next:  repo.StateShopList,
			draft: Draft{Flow: repo.ServiceShop, Shop: &ShopDraft{}},
		}
	case mentions(text, "3", "аптека", "лекарств"):
		return turn{
			reply: "Напишите название лекарства или пришлите фото рецепта.",
			next:  repo.StatePharmacyWaitRx,
			draft: Draft{Flow: repo.ServicePharmacy, Pharmacy: &PharmacyDraft{}},
		}
	case mentions(text, "4", "такси"):
		return turn{
			reply: "Откуда и куда едем? Пример: ул. Ленина 5 — вокзал",
			next:  repo.StateTaxiRoute,
			draft: Draft{Flow: repo.ServiceTaxi, Taxi: &TaxiDraft{}},
		}
	case mentions(text, "5", "груз", "портер", "перевозка"):
		return turn{
			reply: "Что нужно перевезти? Опишите груз.",
			next:  repo.StatePorterCargo,
			draft: Draft{Flow: repo.ServicePorter, Porter: &PorterDraft{}},
		}
	}
	return turn{reply: menuText, next: repo.StateIdle}
}

func mentions(lowered string, words ...string) bool {
	for _, w := range words {
		if lowered == w || strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}

// finish persists the turn outcome and delivers the reply. State is written
// first: a failed send leaves consistent stored state and the customer can
// repeat the message.
func (e *Engine) finish(ctx context.Context, user *repo.User, t turn) error {
	if err := e.persist(ctx, user.Phone, t.next, t.draft); err != nil {
		e.replyText(ctx, user.Phone, msgGenericFailure)
		return err
	}
	if len(t.options) > 0 {
		if err := e.sender.SendButtons(ctx, user.Phone, t.reply, t.options); err != nil {
			e.logger.Error("failed sending reply", "error", err, "phone", user.Phone)
			e.metrics.Errors.WithLabelValues("convo_send").Inc()
		}
		return nil
	}
	e.replyText(ctx, user.Phone, t.reply)
	return nil
}

func (e *Engine) persist(ctx context.Context, phone string, state repo.ConvoState, draft Draft) error {
	if state == repo.StateIdle {
		draft = Draft{}
	}
	data, err := draft.Marshal()
	if err != nil {
		return err
	}
	if err := e.repo.SetUserState(ctx, phone, state, data); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

func (e *Engine) replyText(ctx context.Context, phone, text string) {
	if text == "" {
		return
	}
	if err := e.sender.SendText(ctx, phone, text); err != nil {
		e.logger.Error("failed sending reply", "error", err, "phone", phone)
		e.metrics.Errors.WithLabelValues("convo_send").Inc()
	}
}
