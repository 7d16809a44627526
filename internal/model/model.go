// Package model содержит доменные сущности POS-движка салона.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GiftCardState описывает состояние жизненного цикла подарочной карты.
type GiftCardState string

const (
	GiftCardStatePending   GiftCardState = "PENDING"
	GiftCardStateActive    GiftCardState = "ACTIVE"
	GiftCardStateDepleted  GiftCardState = "DEPLETED"
	GiftCardStateCancelled GiftCardState = "CANCELLED"
	GiftCardStateExpired   GiftCardState = "EXPIRED"
)

// GiftCard представляет подарочную карту с балансом.
// CurrentBalance меняется только вместе с записью в журнал транзакций.
type GiftCard struct {
	ID             int64
	Code           string
	State          GiftCardState
	InitialBalance decimal.Decimal
	CurrentBalance decimal.Decimal
	CustomerID     *int64
	BranchID       *int64
	IssuedBy       int64
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsExpiredAt сообщает, истёк ли срок действия активной карты на указанный момент.
// Истечение срока — вычисляемое представление, в журнал оно не пишется.
func (c *GiftCard) IsExpiredAt(now time.Time) bool {
	return c.State == GiftCardStateActive && c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// TransactionKind описывает вид записи журнала подарочной карты.
type TransactionKind string

const (
	TransactionKindIssue    TransactionKind = "ISSUE"
	TransactionKindActivate TransactionKind = "ACTIVATE"
	TransactionKindRedeem   TransactionKind = "REDEEM"
	TransactionKindRecharge TransactionKind = "RECHARGE"
	TransactionKindCancel   TransactionKind = "CANCEL"
)

// GiftCardTransaction — запись append-only журнала подарочной карты.
// Записи никогда не изменяются и не удаляются; отмена эффекта выполняется
// компенсирующей записью.
type GiftCardTransaction struct {
	ID            int64
	GiftCardID    int64
	Kind          TransactionKind
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	SaleID        *int64
	EmployeeID    int64
	Note          string
	CreatedAt     time.Time
}

// AdjustmentKind описывает вид инструмента корректировки чека.
type AdjustmentKind string

const (
	AdjustmentKindPromotion      AdjustmentKind = "PROMOTION"
	AdjustmentKindManualDiscount AdjustmentKind = "MANUAL_DISCOUNT"
	AdjustmentKindCourtesy       AdjustmentKind = "COURTESY"
	AdjustmentKindWarranty       AdjustmentKind = "WARRANTY"
	AdjustmentKindGiftCard       AdjustmentKind = "GIFT_CARD"
)

// Adjustment — инструмент корректировки, прикреплённый к одному чеку.
// Deduction вычисляется по исходному subtotal и не пересчитывается
// при добавлении последующих инструментов.
type Adjustment struct {
	ID           int64
	SaleID       int64
	Kind         AdjustmentKind
	Value        decimal.Decimal
	IsPercentage bool
	Deduction    decimal.Decimal
	GiftCardID   *int64
	GiftCardTxID *int64
	PromotionID  *string
	CreatedAt    time.Time
}

// LineItem — позиция чека: услуга, цена за единицу и количество.
type LineItem struct {
	ID          int64
	SaleID      int64
	ServiceName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// Total возвращает стоимость позиции.
func (i LineItem) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Sale представляет открытый кассиром чек.
// После финализации список позиций и инструментов заморожен.
type Sale struct {
	ID          int64
	OpenedBy    int64
	Items       []LineItem
	Adjustments []Adjustment
	FinalizedAt *time.Time
	CreatedAt   time.Time
}

// Finalized сообщает, финализирован ли чек.
func (s *Sale) Finalized() bool {
	return s.FinalizedAt != nil
}

// Subtotal возвращает сумму позиций до скидок.
func (s *Sale) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range s.Items {
		sum = sum.Add(it.Total())
	}
	return sum
}

// TotalDeductions возвращает сумму всех применённых скидок.
func (s *Sale) TotalDeductions() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range s.Adjustments {
		sum = sum.Add(a.Deduction)
	}
	return sum
}

// PayableTotal возвращает итог к оплате: max(0, subtotal − скидки).
func (s *Sale) PayableTotal() decimal.Decimal {
	total := s.Subtotal().Sub(s.TotalDeductions())
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
