package wa

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"gorod-bot/internal/metrics"

	"log/slog"
)

// Message is a normalised inbound customer message.
type Message struct {
	MessageID  string
	Phone      string
	Name       string
	Text       string
	ImageURL   string
	Voice      bool
	ReceivedAt time.Time
}

// Processor consumes inbound customer messages.
type Processor interface {
	HandleCustomerMessage(ctx context.Context, msg Message) error
}

// WebhookHandler verifies the gateway webhook token and forwards
// normalised messages to the processor.
type WebhookHandler struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	token     string
	processor Processor
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(logger *slog.Logger, metrics *metrics.Metrics, token string, processor Processor) *WebhookHandler {
	return &WebhookHandler{
		logger:    logger.With("component", "wa_webhook"),
		metrics:   metrics,
		token:     token,
		processor: processor,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.validateToken(r) {
		h.metrics.Errors.WithLabelValues("wa_webhook_auth").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.metrics.Errors.WithLabelValues("wa_webhook").Inc()
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	msg, ok := parseIncoming(body)
	if !ok {
		// Delivery receipts, presence updates and other event kinds are
		// acknowledged without processing.
		writeOK(w)
		return
	}

	msgType := "text"
	switch {
	case msg.Voice:
		msgType = "voice"
	case msg.ImageURL != "":
		msgType = "image"
	}
	h.metrics.WAIncomingMessages.WithLabelValues(msgType).Inc()

	if h.processor != nil {
		if err := h.processor.HandleCustomerMessage(r.Context(), msg); err != nil {
			h.logger.Error("failed processing customer message", "error", err, "phone", msg.Phone)
			h.metrics.Errors.WithLabelValues("wa_webhook_process").Inc()
			http.Error(w, "failed to process", http.StatusInternalServerError)
			return
		}
	}

	writeOK(w)
}

func (h *WebhookHandler) validateToken(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	candidate := strings.TrimSpace(r.Header.Get("X-Webhook-Token"))
	if candidate == "" {
		candidate = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if candidate == "" {
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		candidate = strings.TrimPrefix(auth, "Bearer ")
	}
	return candidate == h.token
}

type incomingPayload struct {
	TypeWebhook string `json:"typeWebhook"`
	IDMessage   string `json:"idMessage"`
	SenderData  struct {
		Sender     string `json:"sender"`
		SenderName string `json:"senderName"`
	} `json:"senderData"`
	MessageData struct {
		TypeMessage     string `json:"typeMessage"`
		TextMessageData struct {
			TextMessage string `json:"textMessage"`
		} `json:"textMessageData"`
		ExtendedTextMessageData struct {
			Text string `json:"text"`
		} `json:"extendedTextMessageData"`
		FileMessageData struct {
			DownloadURL string `json:"downloadUrl"`
			Caption     string `json:"caption"`
		} `json:"fileMessageData"`
	} `json:"messageData"`
}

func parseIncoming(body []byte) (Message, bool) {
	var payload incomingPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Message{}, false
	}
	if payload.TypeWebhook != "" && payload.TypeWebhook != "incomingMessageReceived" {
		return Message{}, false
	}
	if payload.SenderData.Sender == "" {
		return Message{}, false
	}

	msg := Message{
		MessageID:  payload.IDMessage,
		Phone:      strings.TrimSuffix(payload.SenderData.Sender, "@c.us"),
		Name:       payload.SenderData.SenderName,
		ReceivedAt: time.Now(),
	}

	switch payload.MessageData.TypeMessage {
	case "textMessage":
		msg.Text = payload.MessageData.TextMessageData.TextMessage
	case "extendedTextMessage":
		msg.Text = payload.MessageData.ExtendedTextMessageData.Text
	case "imageMessage":
		msg.ImageURL = payload.MessageData.FileMessageData.DownloadURL
		msg.Text = payload.MessageData.FileMessageData.Caption
	case "audioMessage":
		msg.Voice = true
	default:
		return Message{}, false
	}

	return msg, true
}

func writeOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
