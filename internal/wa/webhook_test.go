package wa

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorod-bot/internal/metrics"
)

type recordingProcessor struct {
	messages []Message
	err      error
}

func (p *recordingProcessor) HandleCustomerMessage(_ context.Context, msg Message) error {
	p.messages = append(p.messages, msg)
	return p.err
}

func newWebhook(t *testing.T, token string) (*WebhookHandler, *recordingProcessor) {
	t.Helper()
	proc := &recordingProcessor{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWebhookHandler(logger, metrics.Registry("test"), token, proc), proc
}

const textPayload = `{
	"typeWebhook": "incomingMessageReceived",
	"idMessage": "ABC123",
	"senderData": {"sender": "79990001122@c.us", "senderName": "Иван"},
	"messageData": {"typeMessage": "textMessage", "textMessageData": {"textMessage": "такси"}}
}`

func TestWebhookParsesTextMessage(t *testing.T) {
	h, proc := newWebhook(t, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(textPayload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, proc.messages, 1)
	msg := proc.messages[0]
	assert.Equal(t, "ABC123", msg.MessageID)
	assert.Equal(t, "79990001122", msg.Phone)
	assert.Equal(t, "Иван", msg.Name)
	assert.Equal(t, "такси", msg.Text)
}

func TestWebhookParsesImageMessage(t *testing.T) {
	h, proc := newWebhook(t, "")
	payload := `{
		"typeWebhook": "incomingMessageReceived",
		"idMessage": "IMG1",
		"senderData": {"sender": "79990001122@c.us"},
		"messageData": {"typeMessage": "imageMessage", "fileMessageData": {"downloadUrl": "https://cdn/rx.jpg", "caption": "рецепт"}}
	}`

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, proc.messages, 1)
	assert.Equal(t, "https://cdn/rx.jpg", proc.messages[0].ImageURL)
	assert.Equal(t, "рецепт", proc.messages[0].Text)
}

func TestWebhookAcksNonMessageEvents(t *testing.T) {
	h, proc := newWebhook(t, "")
	payload := `{"typeWebhook": "outgoingMessageStatus"}`

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, proc.messages)
}

func TestWebhookRejectsBadToken(t *testing.T) {
	h, proc := newWebhook(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(textPayload))
	req.Header.Set("X-Webhook-Token", "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, proc.messages)
}

func TestWebhookAcceptsTokenVariants(t *testing.T) {
	for name, decorate := range map[string]func(*http.Request){
		"header": func(r *http.Request) { r.Header.Set("X-Webhook-Token", "secret") },
		"query":  func(r *http.Request) { r.URL.RawQuery = "token=secret" },
		"bearer": func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") },
	} {
		t.Run(name, func(t *testing.T) {
			h, proc := newWebhook(t, "secret")
			req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(textPayload))
			decorate(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Len(t, proc.messages, 1)
		})
	}
}

func TestWebhookRejectsGet(t *testing.T) {
	h, _ := newWebhook(t, "")
	req := httptest.NewRequest(http.MethodGet, "/webhook/whatsapp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
