package convo

import (
	"strings"

	"gorod-bot/internal/repo"
	"gorod-bot/internal/wa"
)

func (e *Engine) handleCafe(state repo.ConvoState, draft Draft, msg wa.Message) turn {
	if draft.Cafe == nil {
		draft.Flow = repo.ServiceCafe
		draft.Cafe = &CafeDraft{}
	}
	text := strings.TrimSpace(msg.Text)

	switch state {
	case repo.StateCafeOrder:
		if text == "" {
			return turn{reply: "Напишите заказ текстом: блюда и количество.", next: state, draft: draft}
		}
		draft.Cafe.Items = text
		return turn{reply: "Принято. Укажите адрес доставки.", next: repo.StateCafeAddress, draft: draft}

	case repo.StateCafeAddress:
		if isVagueAddress(text) {
			return turn{reply: "Уточните адрес, пожалуйста: улица, дом, подъезд.", next: state, draft: draft}
		}
		draft.Cafe.Address = text
		return turn{
			reply:   confirmSummary(draft),
			options: []string{"Подтвердить", "Отмена"},
			next:    repo.StateConfirmOrder,
			draft:   draft,
		}
	}
	return turn{reply: menuText, next: repo.StateIdle}
}
