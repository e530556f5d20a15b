package convo

import (
	"context"
	"errors"
	"fmt"

	"gorod-bot/internal/fanout"
	"gorod-bot/internal/repo"
	"gorod-bot/internal/wa"
)

func (e *Engine) handleConfirmOrder(ctx context.Context, user *repo.User, draft Draft, msg wa.Message) (turn, error) {
	choice := matchOption(msg.Text, "Подтвердить", "Отмена")
	switch {
	case isAffirmative(msg.Text) || choice == 0:
		order, err := e.createOrder(ctx, user, draft, 0)
		if err != nil {
			if errors.Is(err, fanout.ErrNoShopper) {
				if _, aerr := e.repo.AdvanceOrderStatus(ctx, order.ID, repo.StatusPending, repo.StatusCancelled); aerr != nil {
					e.logger.Error("failed cancelling unroutable order", "error", aerr, "order_id", order.ID)
				}
				return turn{
					reply: "Закупщик временно недоступен. Попробуйте позже.\n\n" + menuText,
					next:  repo.StateIdle,
				}, nil
			}
			return turn{}, err
		}
		return turn{
			reply: fmt.Sprintf("Заказ %s принят! Ищем исполнителя, пришлём ответ в этот чат.", order.ID),
			next:  repo.StateIdle,
		}, nil
	case isNegative(msg.Text) || choice == 1:
		return turn{reply: "Заказ отменён.\n\n" + menuText, next: repo.StateIdle}, nil
	}
	return turn{
		reply:   "Ответьте «Подтвердить» или «Отмена».",
		options: []string{"Подтвердить", "Отмена"},
		next:    repo.StateConfirmOrder,
		draft:   draft,
	}, nil
}
