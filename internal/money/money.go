// Package money содержит чистые функции денежных расчётов скидок.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// PercentOf возвращает процент от суммы, округлённый до копеек.
func PercentOf(subtotal, percent decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(percent).Div(hundred).Round(2)
}

// Deduction переводит заявленную величину инструмента (процент или
// фиксированную сумму) в денежную скидку от указанного subtotal.
// Результат всегда в диапазоне [0, subtotal].
func Deduction(subtotal, value decimal.Decimal, isPercentage bool) decimal.Decimal {
	var d decimal.Decimal
	if isPercentage {
		d = PercentOf(subtotal, value)
	} else {
		d = value.Round(2)
	}

	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	return d
}

// Min возвращает меньшую из двух сумм.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ClampToZero обнуляет отрицательный итог.
func ClampToZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// IsValidPercent проверяет, что процент лежит в диапазоне (0, 100].
func IsValidPercent(p decimal.Decimal) bool {
	return p.IsPositive() && !p.GreaterThan(hundred)
}

// IsValidAmount проверяет, что денежная величина строго положительна.
func IsValidAmount(v decimal.Decimal) bool {
	return v.IsPositive()
}
