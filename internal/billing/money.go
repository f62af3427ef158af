package billing

import "github.com/shopspring/decimal"

// FromPaise переводит сумму в пайсах в рупии.
func FromPaise(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}

// ToPaise переводит сумму в рупиях в пайсы с округлением до целого.
func ToPaise(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
