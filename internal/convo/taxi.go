package convo

import (
	"context"
	"fmt"
	"strings"

	"gorod-bot/internal/repo"
	"gorod-bot/internal/wa"
)

func (e *Engine) handleTaxi(ctx context.Context, user *repo.User, state repo.ConvoState, draft Draft, msg wa.Message) (turn, error) {
	if draft.Taxi == nil {
		draft.Flow = repo.ServiceTaxi
		draft.Taxi = &TaxiDraft{}
	}
	text := strings.TrimSpace(msg.Text)

	switch state {
	case repo.StateTaxiRoute:
		from, to, ok := parseRoute(text)
		if !ok {
			return turn{reply: "Напишите маршрут в формате «откуда — куда».", next: state, draft: draft}, nil
		}
		draft.Taxi.From = from
		draft.Taxi.To = to
		draft.Taxi.SuggestedPrice = e.estimator.TaxiFare(from, to)
		return turn{
			reply:   fmt.Sprintf("Поездка %s — %s. Рекомендуемая цена %d ₽.", from, to, draft.Taxi.SuggestedPrice),
			options: []string{fmt.Sprintf("Согласен на %d ₽", draft.Taxi.SuggestedPrice), "Своя цена"},
			next:    repo.StateTaxiPriceChoice,
			draft:   draft,
		}, nil

	case repo.StateTaxiPriceChoice:
		lowered := strings.ToLower(text)
		switch {
		case lowered == "2" || mentions(lowered, "сво", "друг"):
			return turn{reply: "Напишите вашу цену числом.", next: repo.StateTaxiCustomPrice, draft: draft}, nil
		case isAffirmative(text) || mentions(lowered, "соглас"):
			draft.Taxi.Price = draft.Taxi.SuggestedPrice
			return e.submitTaxi(ctx, user, draft)
		}
		// Typing a number straight away also works.
		if price, ok := parsePrice(text); ok {
			draft.Taxi.Price = price
			return e.submitTaxi(ctx, user, draft)
		}
		return turn{
			reply:   "Выберите вариант: согласиться на предложенную цену или назвать свою.",
			options: []string{fmt.Sprintf("Согласен на %d ₽", draft.Taxi.SuggestedPrice), "Своя цена"},
			next:    state,
			draft:   draft,
		}, nil

	case repo.StateTaxiCustomPrice:
		price, ok := parsePrice(text)
		if !ok {
			return turn{reply: "Введите цену числом, например 150.", next: state, draft: draft}, nil
		}
		draft.Taxi.Price = price
		return e.submitTaxi(ctx, user, draft)
	}
	return turn{reply: menuText, next: repo.StateIdle}, nil
}

func (e *Engine) submitTaxi(ctx context.Context, user *repo.User, draft Draft) (turn, error) {
	order, err := e.createOrder(ctx, user, draft, draft.Taxi.Price)
	if err != nil {
		return turn{}, err
	}
	return turn{
		reply: fmt.Sprintf("Заказ %s принят! Ищем водителя, обычно это занимает около минуты.", order.ID),
		next:  repo.StateIdle,
	}, nil
}
