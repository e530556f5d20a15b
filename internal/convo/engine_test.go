package convo

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorod-bot/internal/fanout"
	"gorod-bot/internal/metrics"
	"gorod-bot/internal/pricing"
	"gorod-bot/internal/repo"
	"gorod-bot/internal/repo/repotest"
	"gorod-bot/internal/tg"
	"gorod-bot/internal/wa"
)

type fakeSender struct {
	phones []string
	sent   []string
}

func (f *fakeSender) SendText(_ context.Context, phone, text string) error {
	f.phones = append(f.phones, phone)
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) SendButtons(_ context.Context, phone, text string, options []string) error {
	f.phones = append(f.phones, phone)
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type groupMsg struct {
	chatID int64
	text   string
	photo  string
	rows   [][]tg.Button
}

type fakeGroup struct {
	msgs []groupMsg
}

func (f *fakeGroup) SendMessage(chatID int64, text string, rows [][]tg.Button) (int, error) {
	f.msgs = append(f.msgs, groupMsg{chatID: chatID, text: text, rows: rows})
	return len(f.msgs), nil
}

func (f *fakeGroup) SendPhoto(chatID int64, photoURL, caption string, rows [][]tg.Button) (int, error) {
	f.msgs = append(f.msgs, groupMsg{chatID: chatID, text: caption, photo: photoURL, rows: rows})
	return len(f.msgs), nil
}

func newTestEngine(t *testing.T) (*Engine, *repotest.Memory, *fakeSender, *fakeGroup) {
	t.Helper()
	return newTestEngineWithFanout(t, fanout.Config{
		TaxiGroupID:     -100,
		CafeGroupID:     -200,
		PharmacyGroupID: -300,
		PorterGroupID:   -400,
		ShopGroupID:     -500,
		CafeTimeout:     2 * time.Minute,
		PharmacyTimeout: 3 * time.Minute,
		TaxiTimeout:     time.Minute,
	})
}

func newTestEngineWithFanout(t *testing.T, fcfg fanout.Config) (*Engine, *repotest.Memory, *fakeSender, *fakeGroup) {
	t.Helper()
	mem := repotest.New()
	sender := &fakeSender{}
	group := &fakeGroup{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.Registry("test")
	f := fanout.New(mem, group, fcfg, logger, m)
	engine := New(mem, sender, group, f, pricing.NewEstimator(100), nil, m, logger, EngineConfig{PharmacyDeliveryFee: 50})
	return engine, mem, sender, group
}

var orderIDRe = regexp.MustCompile(`GO\w+`)

func deliver(t *testing.T, e *Engine, phone, text string) {
	t.Helper()
	err := e.HandleCustomerMessage(context.Background(), wa.Message{Phone: phone, Name: "Тест", Text: text})
	require.NoError(t, err)
}

func TestMenuShownForNewCustomer(t *testing.T) {
	e, mem, sender, _ := newTestEngine(t)

	deliver(t, e, "79990001122", "привет")

	assert.Contains(t, sender.last(), "Чем помочь")
	user, err := mem.GetUser(context.Background(), "79990001122")
	require.NoError(t, err)
	assert.Equal(t, repo.StateIdle, user.CurrentState)
}

func TestTaxiFlowCreatesPendingOrder(t *testing.T) {
	e, mem, sender, group := newTestEngine(t)
	phone := "79990001122"

	deliver(t, e, phone, "4")
	assert.Contains(t, sender.last(), "Откуда и куда")

	deliver(t, e, phone, "ул. Ленина 5 — вокзал")
	assert.Contains(t, sender.last(), "150") // base 100 + station surcharge 50

	deliver(t, e, phone, "да")
	reply := sender.last()
	assert.Contains(t, reply, "принят")

	orderID := orderIDRe.FindString(reply)
	require.NotEmpty(t, orderID)
	order, err := mem.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, repo.ServiceTaxi, order.Type)
	assert.Equal(t, repo.StatusPending, order.Status)
	assert.Equal(t, int64(150), order.PriceTotal)

	require.NotEmpty(t, group.msgs)
	announce := group.msgs[len(group.msgs)-1]
	assert.Equal(t, int64(-100), announce.chatID)
	assert.Equal(t, "taxi_take_"+orderID, announce.rows[0][0].Data)

	timers, err := mem.ListExpiredTimers(context.Background(), time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.Equal(t, orderID, timers[0].OrderID)

	user, err := mem.GetUser(context.Background(), phone)
	require.NoError(t, err)
	assert.Equal(t, repo.StateIdle, user.CurrentState)
}

func TestTaxiCustomPrice(t *testing.T) {
	e, mem, sender, _ := newTestEngine(t)
	phone := "79990001122"

	deliver(t, e, phone, "такси")
	deliver(t, e, phone, "дом - рынок")
	deliver(t, e, phone, "своя цена")
	assert.Contains(t, sender.last(), "числом")

	deliver(t, e, phone, "ерунда")
	assert.Contains(t, sender.last(), "числом")

	deliver(t, e, phone, "200")
	orderID := orderIDRe.FindString(sender.last())
	require.NotEmpty(t, orderID)
	order, err := mem.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), order.PriceTotal)
}

func TestCafeFlowRejectsVagueAddress(t *testing.T) {
	e, mem, sender, _ := newTestEngine(t)
	phone := "79990001122"

	deliver(t, e, phone, "1")
	deliver(t, e, phone, "2 шаурмы и кола")
	deliver(t, e, phone, "туда")
	assert.Contains(t, sender.last(), "Уточните адрес")

	deliver(t, e, phone, "ул. Мира 12, кв 4")
	assert.Contains(t, sender.last(), "Всё верно")

	deliver(t, e, phone, "подтвердить")
	orderID := orderIDRe.FindString(sender.last())
	require.NotEmpty(t, orderID)
	order, err := mem.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, repo.ServiceCafe, order.Type)
	assert.Contains(t, string(order.Details), "шаурмы")
}

func TestCancelWordResetsConversation(t *testing.T) {
	e, mem, sender, _ := newTestEngine(t)
	phone := "79990001122"

	deliver(t, e, phone, "такси")
	deliver(t, e, phone, "отмена")
	assert.Contains(t, sender.last(), "отменено")

	user, err := mem.GetUser(context.Background(), phone)
	require.NoError(t, err)
	assert.Equal(t, repo.StateIdle, user.CurrentState)
	assert.True(t, UnmarshalDraft(user.TempData).Empty())
}

func TestUnknownStoredStateFailsClosed(t *testing.T) {
	e, mem, sender, _ := newTestEngine(t)
	phone := "79990001122"

	_, err := mem.GetOrCreateUser(context.Background(), phone, "Тест")
	require.NoError(t, err)
	require.NoError(t, mem.SetUserState(context.Background(), phone, "legacy_state", nil))

	deliver(t, e, phone, "привет")
	assert.Contains(t, sender.last(), "Чем помочь")

	user, err := mem.GetUser(context.Background(), phone)
	require.NoError(t, err)
	assert.Equal(t, repo.StateIdle, user.CurrentState)
}

func TestVoiceMessageKeepsState(t *testing.T) {
	e, mem, sender, _ := newTestEngine(t)
	phone := "79990001122"

	deliver(t, e, phone, "такси")
	err := e.HandleCustomerMessage(context.Background(), wa.Message{Phone: phone, Voice: true})
	require.NoError(t, err)
	assert.Contains(t, sender.last(), "Голосовые")

	user, err := mem.GetUser(context.Background(), phone)
	require.NoError(t, err)
	assert.Equal(t, repo.StateTaxiRoute, user.CurrentState)
}

type failingOrderRepo struct {
	*repotest.Memory
}

func (f *failingOrderRepo) InsertOrder(context.Context, repo.Order) (*repo.Order, error) {
	return nil, errors.New("storage down")
}

func TestHandlerErrorKeepsPriorState(t *testing.T) {
	e, mem, sender, _ := newTestEngine(t)
	phone := "79990001122"

	deliver(t, e, phone, "1")
	deliver(t, e, phone, "пицца")
	deliver(t, e, phone, "ул. Мира 12, кв 4")

	e.repo = &failingOrderRepo{Memory: mem}
	err := e.HandleCustomerMessage(context.Background(), wa.Message{Phone: phone, Text: "подтвердить"})
	require.Error(t, err)
	assert.Contains(t, sender.last(), "попробуйте ещё раз")

	// The stored state still matches what the customer last saw, so a
	// retry of the same reply works once storage recovers.
	e.repo = mem
	deliver(t, e, phone, "подтвердить")
	assert.Contains(t, sender.last(), "принят")
}

func TestPharmacyFlowAndConfirmation(t *testing.T) {
	e, mem, sender, group := newTestEngine(t)
	phone := "79990001122"

	deliver(t, e, phone, "аптека")
	deliver(t, e, phone, "парацетамол, 2 упаковки")
	deliver(t, e, phone, "ул. Мира 12, кв 4")
	reply := sender.last()
	assert.Contains(t, reply, "аптекам")
	orderID := orderIDRe.FindString(reply)
	require.NotEmpty(t, orderID)

	// A pharmacy quoted 300; the router stages the confirmation state.
	pharmacyID := int64(555)
	_, err := mem.UpsertProvider(context.Background(), repo.Provider{TelegramID: pharmacyID, Kind: repo.KindPharmacy, IsActive: true})
	require.NoError(t, err)
	draft := Draft{Flow: repo.ServicePharmacy, Pharmacy: &PharmacyDraft{OrderID: orderID, ProviderID: pharmacyID, Price: 300}}
	raw, err := draft.Marshal()
	require.NoError(t, err)
	require.NoError(t, mem.SetUserState(context.Background(), phone, repo.StatePharmacyConfirm, raw))

	deliver(t, e, phone, "да")
	assert.Contains(t, sender.last(), "350") // 300 + 50 delivery

	order, err := mem.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, repo.StatusAccepted, order.Status)
	require.NotNil(t, order.ProviderID)
	assert.Equal(t, pharmacyID, *order.ProviderID)
	// The agreed total lands on the stored row, not just the reply.
	assert.Equal(t, int64(350), order.PriceTotal)

	// Couriers were asked to pick up the delivery.
	last := group.msgs[len(group.msgs)-1]
	assert.Equal(t, int64(-100), last.chatID)
	assert.Equal(t, "delivery_take_"+orderID, last.rows[0][0].Data)
}

func TestLatePharmacyConfirmationRejected(t *testing.T) {
	e, mem, sender, _ := newTestEngine(t)
	phone := "79990001122"

	deliver(t, e, phone, "аптека")
	deliver(t, e, phone, "анальгин")
	deliver(t, e, phone, "ул. Мира 12, кв 4")
	orderID := orderIDRe.FindString(sender.last())
	require.NotEmpty(t, orderID)

	draft := Draft{Flow: repo.ServicePharmacy, Pharmacy: &PharmacyDraft{OrderID: orderID, ProviderID: 555, Price: 300}}
	raw, err := draft.Marshal()
	require.NoError(t, err)
	require.NoError(t, mem.SetUserState(context.Background(), phone, repo.StatePharmacyConfirm, raw))

	// The order expired before the customer answered.
	cancelled, err := mem.AdvanceOrderStatus(context.Background(), orderID, repo.StatusPending, repo.StatusCancelled)
	require.NoError(t, err)
	require.True(t, cancelled)

	deliver(t, e, phone, "да")
	assert.Contains(t, sender.last(), "уже недоступен")

	order, err := mem.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, repo.StatusCancelled, order.Status)
	assert.Nil(t, order.ProviderID)
	assert.Equal(t, int64(0), order.PriceTotal)
}

func TestShopFlowRoutesToShopper(t *testing.T) {
	e, mem, sender, group := newTestEngine(t)
	phone := "79990001122"
	_, err := mem.UpsertProvider(context.Background(), repo.Provider{TelegramID: 777, Kind: repo.KindShopper, Name: "Закупщик", IsActive: true})
	require.NoError(t, err)

	deliver(t, e, phone, "2")
	deliver(t, e, phone, "хлеб, молоко, сыр")
	deliver(t, e, phone, "ул. Мира 12, кв 4")
	deliver(t, e, phone, "подтвердить")

	orderID := orderIDRe.FindString(sender.last())
	require.NotEmpty(t, orderID)

	// The announcement goes to the shopper's private chat, not a group.
	announce := group.msgs[len(group.msgs)-1]
	assert.Equal(t, int64(777), announce.chatID)
	assert.Equal(t, "shop_take_"+orderID, announce.rows[0][0].Data)

	order, err := mem.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, repo.StatusPending, order.Status)
}

func TestShopOrderWithoutShopperTellsCustomer(t *testing.T) {
	e, mem, sender, group := newTestEngineWithFanout(t, fanout.Config{
		TaxiGroupID: -100,
		CafeTimeout: 2 * time.Minute,
		TaxiTimeout: time.Minute,
	})
	phone := "79990001122"

	deliver(t, e, phone, "магазин")
	deliver(t, e, phone, "хлеб, молоко")
	deliver(t, e, phone, "ул. Мира 12, кв 4")
	deliver(t, e, phone, "подтвердить")

	assert.Contains(t, sender.last(), "недоступен")
	assert.Empty(t, group.msgs)

	counts, err := mem.CountOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, repo.ServiceShop, counts[0].Type)
	assert.Equal(t, repo.StatusCancelled, counts[0].Status)

	user, err := mem.GetUser(context.Background(), phone)
	require.NoError(t, err)
	assert.Equal(t, repo.StateIdle, user.CurrentState)
}

func TestPharmacyConfirmRejectsForeignCustomer(t *testing.T) {
	e, mem, sender, _ := newTestEngine(t)
	owner := "79990001122"
	stranger := "79995556677"

	deliver(t, e, owner, "аптека")
	deliver(t, e, owner, "анальгин")
	deliver(t, e, owner, "ул. Мира 12, кв 4")
	orderID := orderIDRe.FindString(sender.last())
	require.NotEmpty(t, orderID)

	_, err := mem.GetOrCreateUser(context.Background(), stranger, "Чужой")
	require.NoError(t, err)
	draft := Draft{Flow: repo.ServicePharmacy, Pharmacy: &PharmacyDraft{OrderID: orderID, ProviderID: 555, Price: 300}}
	raw, err := draft.Marshal()
	require.NoError(t, err)
	require.NoError(t, mem.SetUserState(context.Background(), stranger, repo.StatePharmacyConfirm, raw))

	deliver(t, e, stranger, "да")

	order, err := mem.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, repo.StatusPending, order.Status)
	assert.Nil(t, order.ProviderID)
}

func TestPorterFlow(t *testing.T) {
	e, mem, sender, group := newTestEngine(t)
	phone := "79990001122"

	deliver(t, e, phone, "5")
	deliver(t, e, phone, "диван, примерно 80 кг")
	deliver(t, e, phone, "ул. Мира 12 — ул. Ленина 5")

	orderID := orderIDRe.FindString(sender.last())
	require.NotEmpty(t, orderID)
	order, err := mem.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, repo.ServicePorter, order.Type)

	announce := group.msgs[len(group.msgs)-1]
	assert.Equal(t, int64(-400), announce.chatID)
	assert.Equal(t, "porter_take_"+orderID, announce.rows[0][0].Data)
}
