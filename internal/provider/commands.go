package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorod-bot/internal/repo"
	"gorod-bot/internal/tg"
)

const helpText = `Команды:
/balance — баланс и последние операции
/id — ваш идентификатор для администратора

Заказы приходят в группу вашей службы, кнопка под заказом закрепляет его за вами.`

// HandleProviderMessage implements tg.Processor for private provider chats.
func (r *Router) HandleProviderMessage(ctx context.Context, msg tg.PrivateMessage) error {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "/start", "/help":
		_, err := r.bot.SendMessage(msg.ChatID, helpText, nil)
		return err
	case "/id":
		_, err := r.bot.SendMessage(msg.ChatID, fmt.Sprintf("Ваш ID: %d", msg.ActorID), nil)
		return err
	case "/balance":
		return r.sendBalance(ctx, msg)
	}
	_, err := r.bot.SendMessage(msg.ChatID, helpText, nil)
	return err
}

func (r *Router) sendBalance(ctx context.Context, msg tg.PrivateMessage) error {
	p, err := r.repo.GetProvider(ctx, msg.ActorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			_, serr := r.bot.SendMessage(msg.ChatID, "Аккаунт не найден. Возьмите первый заказ, чтобы зарегистрироваться.", nil)
			return serr
		}
		return fmt.Errorf("load provider %d: %w", msg.ActorID, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Баланс: %d ₽\n", p.Balance)
	entries, err := r.repo.ListLedgerByProvider(ctx, p.TelegramID)
	if err != nil {
		r.logger.Warn("failed listing ledger", "error", err, "provider", p.TelegramID)
	} else if len(entries) > 0 {
		b.WriteString("\nПоследние операции:\n")
		start := 0
		if len(entries) > 10 {
			start = len(entries) - 10
		}
		for _, e := range entries[start:] {
			fmt.Fprintf(&b, "%s  %+d ₽  %s\n", e.CreatedAt.Format("02.01 15:04"), e.Amount, e.Details)
		}
	}
	_, err = r.bot.SendMessage(msg.ChatID, strings.TrimRight(b.String(), "\n"), nil)
	return err
}
