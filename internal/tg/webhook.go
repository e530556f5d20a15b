package tg

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gorod-bot/internal/metrics"

	"log/slog"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// CallbackEvent is an inline keyboard press from a provider chat.
type CallbackEvent struct {
	CallbackID string
	ActorID    int64
	ActorName  string
	ChatID     int64
	MessageID  int
	Data       string
	ReceivedAt time.Time
}

// PrivateMessage is a direct message from a provider to the bot.
type PrivateMessage struct {
	ActorID    int64
	ChatID     int64
	Text       string
	ReceivedAt time.Time
}

// Processor consumes provider-channel events.
type Processor interface {
	HandleProviderCallback(ctx context.Context, ev CallbackEvent) error
	HandleProviderMessage(ctx context.Context, msg PrivateMessage) error
}

// WebhookHandler verifies the Telegram webhook secret and forwards updates
// to the processor.
type WebhookHandler struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	secret    string
	processor Processor
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(logger *slog.Logger, metrics *metrics.Metrics, secret string, processor Processor) *WebhookHandler {
	return &WebhookHandler{
		logger:    logger.With("component", "tg_webhook"),
		metrics:   metrics,
		secret:    secret,
		processor: processor,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.secret != "" && r.Header.Get(secretTokenHeader) != h.secret {
		h.metrics.Errors.WithLabelValues("tg_webhook_auth").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.metrics.Errors.WithLabelValues("tg_webhook").Inc()
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		h.metrics.Errors.WithLabelValues("tg_webhook").Inc()
		http.Error(w, "malformed update", http.StatusBadRequest)
		return
	}

	switch {
	case update.CallbackQuery != nil:
		h.metrics.TGIncomingEvents.WithLabelValues("callback").Inc()
		ev := CallbackEvent{
			CallbackID: update.CallbackQuery.ID,
			ActorID:    update.CallbackQuery.From.ID,
			ActorName:  update.CallbackQuery.From.FirstName,
			Data:       update.CallbackQuery.Data,
			ReceivedAt: time.Now(),
		}
		if update.CallbackQuery.Message != nil {
			ev.ChatID = update.CallbackQuery.Message.Chat.ID
			ev.MessageID = update.CallbackQuery.Message.MessageID
		}
		if h.processor != nil {
			if err := h.processor.HandleProviderCallback(r.Context(), ev); err != nil {
				h.logger.Error("failed processing callback", "error", err, "data", ev.Data)
				h.metrics.Errors.WithLabelValues("tg_webhook_process").Inc()
				http.Error(w, "failed to process", http.StatusInternalServerError)
				return
			}
		}
	case update.Message != nil && update.Message.Chat != nil && update.Message.Chat.IsPrivate():
		h.metrics.TGIncomingEvents.WithLabelValues("private_message").Inc()
		msg := PrivateMessage{
			ActorID:    update.Message.From.ID,
			ChatID:     update.Message.Chat.ID,
			Text:       update.Message.Text,
			ReceivedAt: time.Now(),
		}
		if h.processor != nil {
			if err := h.processor.HandleProviderMessage(r.Context(), msg); err != nil {
				h.logger.Error("failed processing private message", "error", err, "actor", msg.ActorID)
				h.metrics.Errors.WithLabelValues("tg_webhook_process").Inc()
				http.Error(w, "failed to process", http.StatusInternalServerError)
				return
			}
		}
	default:
		h.metrics.TGIncomingEvents.WithLabelValues("ignored").Inc()
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
