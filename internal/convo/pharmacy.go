package convo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorod-bot/internal/repo"
	"gorod-bot/internal/wa"
)

func (e *Engine) handlePharmacy(ctx context.Context, user *repo.User, state repo.ConvoState, draft Draft, msg wa.Message) (turn, error) {
	if draft.Pharmacy == nil {
		draft.Flow = repo.ServicePharmacy
		draft.Pharmacy = &PharmacyDraft{}
	}
	text := strings.TrimSpace(msg.Text)

	switch state {
	case repo.StatePharmacyWaitRx:
		if msg.ImageURL == "" && text == "" {
			return turn{reply: "Пришлите фото рецепта или напишите названия лекарств.", next: state, draft: draft}, nil
		}
		draft.Pharmacy.ImageURL = msg.ImageURL
		draft.Pharmacy.Rx = text
		return turn{reply: "Принято. Укажите адрес доставки.", next: repo.StatePharmacyAddress, draft: draft}, nil

	case repo.StatePharmacyAddress:
		if isVagueAddress(text) {
			return turn{reply: "Уточните адрес, пожалуйста: улица, дом, подъезд.", next: state, draft: draft}, nil
		}
		draft.Pharmacy.Address = text
		order, err := e.createOrder(ctx, user, draft, 0)
		if err != nil {
			return turn{}, err
		}
		return turn{
			reply: fmt.Sprintf("Заказ %s отправлен аптекам. Пришлём цену, как только аптека ответит.", order.ID),
			next:  repo.StateIdle,
		}, nil
	}
	return turn{reply: menuText, next: repo.StateIdle}, nil
}

// handlePharmacyConfirm processes the customer's answer to a pharmacy quote.
// The quote details were stored in the draft by the provider router.
func (e *Engine) handlePharmacyConfirm(ctx context.Context, user *repo.User, draft Draft, msg wa.Message) (turn, error) {
	quote := draft.Pharmacy
	if quote == nil || quote.OrderID == "" {
		return turn{reply: menuText, next: repo.StateIdle}, nil
	}

	order, err := e.repo.GetOrder(ctx, quote.OrderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return turn{reply: "Этот заказ больше не найден.\n\n" + menuText, next: repo.StateIdle}, nil
		}
		return turn{}, fmt.Errorf("load pharmacy order: %w", err)
	}
	if order.ClientPhone != user.Phone {
		e.logger.Warn("pharmacy confirmation from non-owner", "phone", user.Phone, "order_id", order.ID)
		e.metrics.Errors.WithLabelValues("convo_auth").Inc()
		return turn{reply: menuText, next: repo.StateIdle}, nil
	}

	switch {
	case isAffirmative(msg.Text):
		total := quote.Price + e.cfg.PharmacyDeliveryFee
		won, err := e.repo.ConfirmOrderQuote(ctx, order.ID, quote.ProviderID, total)
		if err != nil {
			return turn{}, fmt.Errorf("claim pharmacy order: %w", err)
		}
		if !won {
			e.metrics.RaceLost.WithLabelValues("pharmacy_confirm").Inc()
			return turn{reply: "К сожалению, заказ уже недоступен: он истёк или был отменён.\n\n" + menuText, next: repo.StateIdle}, nil
		}
		e.metrics.OrderTransitions.WithLabelValues(string(order.Type), string(repo.StatusAccepted)).Inc()
		order.Status = repo.StatusAccepted
		order.ProviderID = &quote.ProviderID
		order.PriceTotal = total
		if err := e.fanout.NotifyDelivery(ctx, order); err != nil {
			e.logger.Error("failed notifying couriers", "error", err, "order_id", order.ID)
			e.metrics.Errors.WithLabelValues("convo_fanout").Inc()
		}
		return turn{
			reply: fmt.Sprintf("Подтверждено! Итого %d ₽ с доставкой. Ищем курьера.", order.PriceTotal),
			next:  repo.StateIdle,
		}, nil

	case isNegative(msg.Text):
		cancelled, err := e.repo.AdvanceOrderStatus(ctx, order.ID, repo.StatusPending, repo.StatusCancelled)
		if err != nil {
			return turn{}, fmt.Errorf("cancel pharmacy order: %w", err)
		}
		if cancelled {
			e.metrics.OrderTransitions.WithLabelValues(string(order.Type), string(repo.StatusCancelled)).Inc()
			if _, err := e.notifier.SendMessage(quote.ProviderID, fmt.Sprintf("Клиент отказался от заказа %s.", order.ID), nil); err != nil {
				e.logger.Warn("failed notifying pharmacy about refusal", "error", err, "order_id", order.ID)
			}
		}
		return turn{reply: "Хорошо, заказ отменён.\n\n" + menuText, next: repo.StateIdle}, nil
	}

	return turn{
		reply:   fmt.Sprintf("Аптека предлагает %d ₽ (+%d ₽ доставка). Берём?", quote.Price, e.cfg.PharmacyDeliveryFee),
		options: []string{"Да", "Нет"},
		next:    repo.StatePharmacyConfirm,
		draft:   draft,
	}, nil
}
