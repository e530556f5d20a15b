package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorod-bot/internal/convo"
	"gorod-bot/internal/fanout"
	"gorod-bot/internal/metrics"
	"gorod-bot/internal/repo"
	"gorod-bot/internal/repo/repotest"
	"gorod-bot/internal/tg"
)

type fakeBot struct {
	mu      sync.Mutex
	sent    []string
	answers []string
	edits   []string
}

func (f *fakeBot) SendMessage(chatID int64, text string, rows [][]tg.Button) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return len(f.sent), nil
}

func (f *fakeBot) SendPhoto(chatID int64, photoURL, caption string, rows [][]tg.Button) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, caption)
	return len(f.sent), nil
}

func (f *fakeBot) EditMessageText(chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeBot) AnswerCallback(callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeBot) countAnswer(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.answers {
		if a == text {
			n++
		}
	}
	return n
}

type fakeWA struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeWA) SendText(_ context.Context, phone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeWA) SendButtons(_ context.Context, phone, text string, options []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func newTestRouter(t *testing.T) (*Router, *repotest.Memory, *fakeBot, *fakeWA) {
	t.Helper()
	mem := repotest.New()
	bot := &fakeBot{}
	waSender := &fakeWA{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.Registry("test")
	f := fanout.New(mem, bot, fanout.Config{TaxiGroupID: -100, TaxiTimeout: time.Minute}, logger, m)
	router := New(mem, bot, waSender, f, m, logger, Config{
		TaxiCommission:       10,
		PorterCommission:     10,
		ShopperCommission:    10,
		CafeCommissionPct:    5,
		PharmacyDeliveryFee:  50,
		MinDriverBalance:     0,
		CustomPriceThreshold: 70,
		CancelRefundWindow:   30 * time.Second,
	})
	return router, mem, bot, waSender
}

func seedOrder(t *testing.T, mem *repotest.Memory, id string, typ repo.ServiceType, price int64) *repo.Order {
	t.Helper()
	details, _ := json.Marshal(map[string]string{"from": "ул. Мира 1", "to": "вокзал"})
	order, err := mem.InsertOrder(context.Background(), repo.Order{
		ID:          id,
		Type:        typ,
		Status:      repo.StatusPending,
		ClientPhone: "79990001122",
		Details:     details,
		PriceTotal:  price,
	})
	require.NoError(t, err)
	return order
}

func seedProvider(t *testing.T, mem *repotest.Memory, id int64, kind repo.ProviderKind, balance int64) {
	t.Helper()
	p, err := mem.UpsertProvider(context.Background(), repo.Provider{
		TelegramID: id,
		Kind:       kind,
		Name:       fmt.Sprintf("Провайдер %d", id),
		IsActive:   true,
	})
	require.NoError(t, err)
	if balance != 0 {
		_, err = mem.ApplyLedgerEntry(context.Background(), repo.LedgerEntry{
			ProviderID: p.TelegramID,
			Action:     repo.LedgerTopup,
			Amount:     balance,
			Details:    "пополнение",
		})
		require.NoError(t, err)
	}
}

func callback(actor int64, data string) tg.CallbackEvent {
	return tg.CallbackEvent{
		CallbackID: "cb",
		ActorID:    actor,
		ActorName:  "Водитель",
		ChatID:     -100,
		MessageID:  7,
		Data:       data,
	}
}

func TestTaxiClaimFirstPressWins(t *testing.T) {
	router, mem, bot, waSender := newTestRouter(t)
	seedOrder(t, mem, "GO1", repo.ServiceTaxi, 150)
	seedProvider(t, mem, 111, repo.KindDriver, 500)
	seedProvider(t, mem, 222, repo.KindDriver, 500)

	var wg sync.WaitGroup
	for _, actor := range []int64{111, 222} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, router.HandleProviderCallback(context.Background(), callback(id, "taxi_take_GO1")))
		}(actor)
	}
	wg.Wait()

	assert.Equal(t, 1, bot.countAnswer("Заказ ваш!"))
	assert.Equal(t, 1, bot.countAnswer("Заказ уже занят."))

	order, err := mem.GetOrder(context.Background(), "GO1")
	require.NoError(t, err)
	assert.Equal(t, repo.StatusAccepted, order.Status)
	require.NotNil(t, order.DriverID)

	// Exactly one commission is charged, to the winner.
	winner, err := mem.GetProvider(context.Background(), *order.DriverID)
	require.NoError(t, err)
	assert.Equal(t, int64(490), winner.Balance)
	entries, err := mem.ListLedgerByProvider(context.Background(), *order.DriverID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, repo.LedgerCommission, entries[1].Action)
	assert.Equal(t, int64(-10), entries[1].Amount)

	require.NotEmpty(t, waSender.texts)
	assert.Contains(t, waSender.texts[len(waSender.texts)-1], "Исполнитель найден")
}

func TestClaimBelowMinBalanceRejected(t *testing.T) {
	router, mem, bot, _ := newTestRouter(t)
	router.cfg.MinDriverBalance = 100
	seedOrder(t, mem, "GO1", repo.ServiceTaxi, 150)
	seedProvider(t, mem, 111, repo.KindDriver, 50)

	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(111, "taxi_take_GO1")))

	assert.Equal(t, 1, bot.countAnswer("Недостаточно средств на балансе. Пополните счёт."))
	order, err := mem.GetOrder(context.Background(), "GO1")
	require.NoError(t, err)
	assert.Equal(t, repo.StatusPending, order.Status)
}

func TestCustomPriceBelowThresholdHalvesCommission(t *testing.T) {
	router, mem, _, _ := newTestRouter(t)
	seedOrder(t, mem, "GO1", repo.ServiceTaxi, 60)
	seedProvider(t, mem, 111, repo.KindDriver, 100)

	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(111, "taxi_take_GO1")))

	driver, err := mem.GetProvider(context.Background(), 111)
	require.NoError(t, err)
	assert.Equal(t, int64(95), driver.Balance)
}

func TestCafeAcceptAnnouncesDelivery(t *testing.T) {
	router, mem, bot, waSender := newTestRouter(t)
	seedOrder(t, mem, "GO1", repo.ServiceCafe, 0)
	seedProvider(t, mem, 333, repo.KindCafe, 0)

	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(333, "cafe_accept_GO1")))

	order, err := mem.GetOrder(context.Background(), "GO1")
	require.NoError(t, err)
	assert.Equal(t, repo.StatusAccepted, order.Status)

	// Cafe brief plus the courier announcement in the taxi group.
	require.GreaterOrEqual(t, len(bot.sent), 2)
	assert.Contains(t, bot.sent[len(bot.sent)-1], "Доставка")
	assert.Contains(t, waSender.texts[len(waSender.texts)-1], "приняло заказ")
}

func TestDeliveryClaimRequiresAcceptedOrder(t *testing.T) {
	router, mem, bot, _ := newTestRouter(t)
	seedOrder(t, mem, "GO1", repo.ServiceCafe, 0)
	seedProvider(t, mem, 111, repo.KindDriver, 100)

	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(111, "delivery_take_GO1")))
	assert.Equal(t, 1, bot.countAnswer("Доставка уже занята."))
}

func TestPharmacyBidStagesCustomerConfirmation(t *testing.T) {
	router, mem, bot, waSender := newTestRouter(t)
	order := seedOrder(t, mem, "GO1", repo.ServicePharmacy, 0)
	seedProvider(t, mem, 555, repo.KindPharmacy, 0)
	_, err := mem.GetOrCreateUser(context.Background(), order.ClientPhone, "Клиент")
	require.NoError(t, err)

	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(555, "pharm_bid_GO1_300")))

	assert.Equal(t, 1, bot.countAnswer("Предложение отправлено клиенту."))
	bid, err := mem.GetPharmacyBid(context.Background(), "GO1", 555)
	require.NoError(t, err)
	assert.Equal(t, int64(300), bid.Price)

	user, err := mem.GetUser(context.Background(), order.ClientPhone)
	require.NoError(t, err)
	assert.Equal(t, repo.StatePharmacyConfirm, user.CurrentState)
	draft := convo.UnmarshalDraft(user.TempData)
	require.NotNil(t, draft.Pharmacy)
	assert.Equal(t, "GO1", draft.Pharmacy.OrderID)
	assert.Equal(t, int64(555), draft.Pharmacy.ProviderID)
	assert.Equal(t, int64(300), draft.Pharmacy.Price)

	require.NotEmpty(t, waSender.texts)
	assert.Contains(t, waSender.texts[0], "300")
}

func TestRideLifecycleGuardsDriver(t *testing.T) {
	router, mem, bot, waSender := newTestRouter(t)
	seedOrder(t, mem, "GO1", repo.ServiceTaxi, 150)
	seedProvider(t, mem, 111, repo.KindDriver, 100)
	seedProvider(t, mem, 222, repo.KindDriver, 100)

	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(111, "taxi_take_GO1")))

	// A different driver cannot move the claimed order.
	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(222, "taxi_arrived_GO1")))
	assert.Equal(t, 1, bot.countAnswer("Этот заказ закреплён не за вами."))

	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(111, "taxi_arrived_GO1")))
	order, err := mem.GetOrder(context.Background(), "GO1")
	require.NoError(t, err)
	assert.Equal(t, repo.StatusInProgress, order.Status)

	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(111, "taxi_finish_GO1")))
	order, err = mem.GetOrder(context.Background(), "GO1")
	require.NoError(t, err)
	assert.Equal(t, repo.StatusCompleted, order.Status)
	assert.Contains(t, waSender.texts[len(waSender.texts)-1], "завершена")
}

func TestRideCancelWithinWindowRefundsCommission(t *testing.T) {
	router, mem, bot, waSender := newTestRouter(t)
	seedOrder(t, mem, "GO1", repo.ServiceTaxi, 150)
	seedProvider(t, mem, 111, repo.KindDriver, 100)

	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(111, "taxi_take_GO1")))
	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(111, "taxi_cancel_GO1")))

	assert.Equal(t, 1, bot.countAnswer("Заказ отменён, комиссия возвращена."))

	order, err := mem.GetOrder(context.Background(), "GO1")
	require.NoError(t, err)
	assert.Equal(t, repo.StatusCancelled, order.Status)

	driver, err := mem.GetProvider(context.Background(), 111)
	require.NoError(t, err)
	assert.Equal(t, int64(100), driver.Balance)

	entries, err := mem.ListLedgerByProvider(context.Background(), 111)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, repo.LedgerRefund, entries[2].Action)
	assert.Equal(t, int64(10), entries[2].Amount)

	assert.Contains(t, waSender.texts[len(waSender.texts)-1], "отменил заказ")
}

func TestPorterCancelRefundsChargedCommission(t *testing.T) {
	router, mem, bot, _ := newTestRouter(t)
	router.cfg.PorterCommission = 30
	seedOrder(t, mem, "GO1", repo.ServicePorter, 150)
	seedProvider(t, mem, 111, repo.KindDriver, 100)

	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(111, "porter_take_GO1")))

	order, err := mem.GetOrder(context.Background(), "GO1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), order.Commission)
	driver, err := mem.GetProvider(context.Background(), 111)
	require.NoError(t, err)
	assert.Equal(t, int64(70), driver.Balance)

	// The refund matches the porter rate charged at claim time, not the
	// taxi rate.
	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(111, "taxi_cancel_GO1")))
	assert.Equal(t, 1, bot.countAnswer("Заказ отменён, комиссия возвращена."))

	driver, err = mem.GetProvider(context.Background(), 111)
	require.NoError(t, err)
	assert.Equal(t, int64(100), driver.Balance)

	entries, err := mem.ListLedgerByProvider(context.Background(), 111)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, repo.LedgerRefund, entries[2].Action)
	assert.Equal(t, int64(30), entries[2].Amount)
}

func TestBalanceCommand(t *testing.T) {
	router, mem, bot, _ := newTestRouter(t)
	seedProvider(t, mem, 111, repo.KindDriver, 250)

	require.NoError(t, router.HandleProviderMessage(context.Background(), tg.PrivateMessage{
		ActorID: 111,
		ChatID:  111,
		Text:    "/balance",
	}))

	require.NotEmpty(t, bot.sent)
	assert.Contains(t, bot.sent[len(bot.sent)-1], "Баланс: 250")
}

func TestUnknownCallbackIgnored(t *testing.T) {
	router, _, bot, _ := newTestRouter(t)
	require.NoError(t, router.HandleProviderCallback(context.Background(), callback(111, "legacy_button_42")))
	assert.Equal(t, 1, bot.countAnswer(""))
}
