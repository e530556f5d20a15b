package tg

import (
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gorod-bot/internal/metrics"
)

// botAPI is the subset of tgbotapi.BotAPI the client uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Client sends provider-facing messages through the Telegram Bot API.
type Client struct {
	bot     botAPI
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Button is one inline keyboard button with callback data.
type Button struct {
	Text string
	Data string
}

// New creates a Telegram client with the given bot token.
func New(token string, logger *slog.Logger, metrics *metrics.Metrics) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return NewWithBot(bot, logger, metrics), nil
}

// NewWithBot wraps an existing bot API, used by tests.
func NewWithBot(bot botAPI, logger *slog.Logger, metrics *metrics.Metrics) *Client {
	return &Client{
		bot:     bot,
		logger:  logger.With("component", "tg"),
		metrics: metrics,
	}
}

// SendMessage delivers a text message with an optional inline keyboard and
// returns the Telegram message id for later edits.
func (c *Client) SendMessage(chatID int64, text string, rows [][]Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(rows) > 0 {
		msg.ReplyMarkup = keyboard(rows)
	}

	started := time.Now()
	sent, err := c.bot.Send(msg)
	c.observe("message", started, err)
	if err != nil {
		return 0, fmt.Errorf("telegram send: %w", err)
	}
	return sent.MessageID, nil
}

// SendPhoto delivers a photo by URL with a caption and an optional inline
// keyboard. Used to forward prescription photos to the pharmacy pool.
func (c *Client) SendPhoto(chatID int64, photoURL, caption string, rows [][]Button) (int, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	photo.Caption = caption
	if len(rows) > 0 {
		photo.ReplyMarkup = keyboard(rows)
	}

	started := time.Now()
	sent, err := c.bot.Send(photo)
	c.observe("photo", started, err)
	if err != nil {
		return 0, fmt.Errorf("telegram send photo: %w", err)
	}
	return sent.MessageID, nil
}

// EditMessageText replaces a previously sent message, dropping its keyboard.
func (c *Client) EditMessageText(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)

	started := time.Now()
	_, err := c.bot.Request(edit)
	c.observe("edit", started, err)
	if err != nil {
		return fmt.Errorf("telegram edit: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query with a short notice.
func (c *Client) AnswerCallback(callbackID, text string) error {
	cb := tgbotapi.NewCallback(callbackID, text)

	started := time.Now()
	_, err := c.bot.Request(cb)
	c.observe("callback", started, err)
	if err != nil {
		return fmt.Errorf("telegram answer callback: %w", err)
	}
	return nil
}

func (c *Client) observe(kind string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.SendLatency.WithLabelValues("telegram", status).Observe(time.Since(started).Seconds())
	c.metrics.TGOutgoingMessages.WithLabelValues(kind, status).Inc()
}

func keyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	var kb [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var line []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			line = append(line, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		kb = append(kb, line)
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}
