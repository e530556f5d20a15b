package convo

import (
	"context"
	"fmt"
	"strings"

	"gorod-bot/internal/repo"
	"gorod-bot/internal/wa"
)

func (e *Engine) handlePorter(ctx context.Context, user *repo.User, state repo.ConvoState, draft Draft, msg wa.Message) (turn, error) {
	if draft.Porter == nil {
		draft.Flow = repo.ServicePorter
		draft.Porter = &PorterDraft{}
	}
	text := strings.TrimSpace(msg.Text)

	switch state {
	case repo.StatePorterCargo:
		if text == "" {
			return turn{reply: "Опишите груз: что везём и примерный вес.", next: state, draft: draft}, nil
		}
		draft.Porter.Cargo = text
		return turn{reply: "Понятно. Напишите маршрут: откуда и куда.", next: repo.StatePorterRoute, draft: draft}, nil

	case repo.StatePorterRoute:
		from, to, ok := parseRoute(text)
		if !ok {
			return turn{reply: "Напишите маршрут в формате «откуда — куда».", next: state, draft: draft}, nil
		}
		draft.Porter.From = from
		draft.Porter.To = to
		order, err := e.createOrder(ctx, user, draft, 0)
		if err != nil {
			return turn{}, err
		}
		return turn{
			reply: fmt.Sprintf("Заказ %s принят! Ищем перевозчика.", order.ID),
			next:  repo.StateIdle,
		}, nil
	}
	return turn{reply: menuText, next: repo.StateIdle}, nil
}
