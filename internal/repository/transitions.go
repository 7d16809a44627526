package repository

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mlebedeva/salonpos-system/internal/model"
)

// balanceChange описывает вычисленный эффект денежной операции над картой:
// баланс до и после и новое состояние.
type balanceChange struct {
	before decimal.Decimal
	after  decimal.Decimal
	state  model.GiftCardState
}

// redeemChange проверяет допустимость списания и вычисляет его эффект, не
// изменяя карту. Списание законно только из ACTIVE с непросроченным сроком;
// списание до нуля переводит карту в DEPLETED.
func redeemChange(card *model.GiftCard, amount decimal.Decimal, now time.Time) (balanceChange, error) {
	if !amount.IsPositive() {
		return balanceChange{}, ErrInvalidAmount
	}

	if card.State != model.GiftCardStateActive {
		return balanceChange{}, fmt.Errorf("%w: redeem from %s", ErrIllegalStateTransition, card.State)
	}
	if card.IsExpiredAt(now) {
		return balanceChange{}, fmt.Errorf("%w: redeem from %s", ErrIllegalStateTransition, model.GiftCardStateExpired)
	}

	if amount.GreaterThan(card.CurrentBalance) {
		return balanceChange{}, ErrInsufficientBalance
	}

	after := card.CurrentBalance.Sub(amount)
	state := model.GiftCardStateActive
	if after.IsZero() {
		state = model.GiftCardStateDepleted
	}

	return balanceChange{before: card.CurrentBalance, after: after, state: state}, nil
}

// rechargeChange проверяет допустимость пополнения и вычисляет его эффект.
// Пополнение законно из ACTIVE и DEPLETED; DEPLETED возвращается в ACTIVE.
// Инвариант 0 <= current <= initial: пополнение выше номинала недопустимо.
func rechargeChange(card *model.GiftCard, amount decimal.Decimal, now time.Time) (balanceChange, error) {
	if !amount.IsPositive() {
		return balanceChange{}, ErrInvalidAmount
	}

	if card.State != model.GiftCardStateActive && card.State != model.GiftCardStateDepleted {
		return balanceChange{}, fmt.Errorf("%w: recharge from %s", ErrIllegalStateTransition, card.State)
	}
	if card.IsExpiredAt(now) {
		return balanceChange{}, fmt.Errorf("%w: recharge from %s", ErrIllegalStateTransition, model.GiftCardStateExpired)
	}

	after := card.CurrentBalance.Add(amount)
	if after.GreaterThan(card.InitialBalance) {
		return balanceChange{}, ErrInvalidAmount
	}

	return balanceChange{before: card.CurrentBalance, after: after, state: model.GiftCardStateActive}, nil
}

// activateCheck проверяет допустимость активации: только из PENDING.
func activateCheck(card *model.GiftCard) error {
	if card.State != model.GiftCardStatePending {
		return fmt.Errorf("%w: activate from %s", ErrIllegalStateTransition, card.State)
	}
	return nil
}

// cancelCheck проверяет допустимость аннулирования: из PENDING и ACTIVE,
// но не для просроченной карты.
func cancelCheck(card *model.GiftCard, now time.Time) error {
	if card.State != model.GiftCardStatePending && card.State != model.GiftCardStateActive {
		return fmt.Errorf("%w: cancel from %s", ErrIllegalStateTransition, card.State)
	}
	if card.IsExpiredAt(now) {
		return fmt.Errorf("%w: cancel from %s", ErrIllegalStateTransition, model.GiftCardStateExpired)
	}
	return nil
}

// reversalNote строит примечание компенсирующей записи со ссылкой на
// отменяемую транзакцию, если она известна.
func reversalNote(txID *int64) string {
	if txID == nil {
		return "reversal"
	}
	return fmt.Sprintf("reversal of transaction %d", *txID)
}
