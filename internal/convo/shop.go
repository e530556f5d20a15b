package convo

import (
	"strings"

	"gorod-bot/internal/repo"
	"gorod-bot/internal/wa"
)

func (e *Engine) handleShop(state repo.ConvoState, draft Draft, msg wa.Message) turn {
	if draft.Shop == nil {
		draft.Flow = repo.ServiceShop
		draft.Shop = &ShopDraft{}
	}
	text := strings.TrimSpace(msg.Text)

	switch state {
	case repo.StateShopList:
		if text == "" {
			return turn{reply: "Пришлите список покупок одним сообщением.", next: state, draft: draft}
		}
		draft.Shop.List = text
		return turn{reply: "Список получен. Укажите адрес доставки.", next: repo.StateShopAddress, draft: draft}

	case repo.StateShopAddress:
		if isVagueAddress(text) {
			return turn{reply: "Уточните адрес, пожалуйста: улица, дом, подъезд.", next: state, draft: draft}
		}
		draft.Shop.Address = text
		return turn{
			reply:   confirmSummary(draft),
			options: []string{"Подтвердить", "Отмена"},
			next:    repo.StateConfirmOrder,
			draft:   draft,
		}
	}
	return turn{reply: menuText, next: repo.StateIdle}
}
