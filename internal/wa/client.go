package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gorod-bot/internal/metrics"

	"log/slog"
)

// Client sends customer-facing messages through the WhatsApp HTTP gateway.
type Client struct {
	logger     *slog.Logger
	baseURL    string
	instanceID string
	token      string
	timeout    time.Duration
	http       *http.Client
	metrics    *metrics.Metrics
}

// Config holds WhatsApp gateway configuration.
type Config struct {
	BaseURL    string
	InstanceID string
	Token      string
	Timeout    time.Duration
}

// New creates a new WhatsApp gateway client.
func New(cfg Config, logger *slog.Logger, metrics *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:     logger.With("component", "wa"),
		baseURL:    base,
		instanceID: cfg.InstanceID,
		token:      cfg.Token,
		timeout:    timeout,
		http:       &http.Client{Timeout: timeout},
		metrics:    metrics,
	}
}

// ChatID converts a bare phone number to the gateway chat identifier.
func ChatID(phone string) string {
	return phone + "@c.us"
}

// SendText delivers a plain text message to the customer.
func (c *Client) SendText(ctx context.Context, phone, text string) error {
	payload := map[string]any{
		"chatId":  ChatID(phone),
		"message": text,
	}
	return c.post(ctx, "sendMessage", "text", payload)
}

// SendButtons delivers a quick-reply prompt. The gateway has no reliable
// button rendering, so options are numbered into the message body and the
// customer answers with the number or the option text.
func (c *Client) SendButtons(ctx context.Context, phone, text string, options []string) error {
	var b strings.Builder
	b.WriteString(text)
	for i, opt := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	payload := map[string]any{
		"chatId":  ChatID(phone),
		"message": b.String(),
	}
	return c.post(ctx, "sendMessage", "buttons", payload)
}

// SendImage delivers an image by URL with an optional caption.
func (c *Client) SendImage(ctx context.Context, phone, imageURL, caption string) error {
	payload := map[string]any{
		"chatId":   ChatID(phone),
		"urlFile":  imageURL,
		"fileName": "image.jpg",
		"caption":  caption,
	}
	return c.post(ctx, "sendFileByUrl", "image", payload)
}

type sendResponse struct {
	IDMessage string `json:"idMessage"`
}

func (c *Client) post(ctx context.Context, endpoint, msgType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", endpoint, err)
	}

	url := fmt.Sprintf("%s/waInstance%s/%s/%s", c.baseURL, c.instanceID, endpoint, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.SendLatency.WithLabelValues("whatsapp", status).Observe(time.Since(started).Seconds())
	if err != nil {
		c.metrics.WAOutgoingMessages.WithLabelValues(msgType, "error").Inc()
		return fmt.Errorf("send %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.WAOutgoingMessages.WithLabelValues(msgType, "error").Inc()
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.WAOutgoingMessages.WithLabelValues(msgType, "error").Inc()
		return fmt.Errorf("send %s: unexpected status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result sendResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Debug("unparsed gateway response", "endpoint", endpoint, "body", string(raw))
	}

	c.metrics.WAOutgoingMessages.WithLabelValues(msgType, "ok").Inc()
	c.logger.Debug("whatsapp message sent", "endpoint", endpoint, "id", result.IDMessage)
	return nil
}
