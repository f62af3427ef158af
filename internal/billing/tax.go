package billing

import "github.com/shopspring/decimal"

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// TaxMode описывает способ учёта GST в цене строки.
// Реализации: Inclusive и Exclusive.
type TaxMode interface {
	// Split раскладывает сумму строки на базу без налога и сам налог.
	Split(lineTotal decimal.Decimal) (base, tax decimal.Decimal)
	// RatePercent возвращает ставку налога в процентах.
	RatePercent() decimal.Decimal

	sealed()
}

// Inclusive означает, что цена уже содержит налог.
type Inclusive struct {
	Rate decimal.Decimal
}

// Split выделяет налог из суммы строки.
func (m Inclusive) Split(lineTotal decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	base := lineTotal.Div(one.Add(m.Rate.Div(hundred)))
	return base, lineTotal.Sub(base)
}

// RatePercent возвращает ставку налога в процентах.
func (m Inclusive) RatePercent() decimal.Decimal { return m.Rate }

func (Inclusive) sealed() {}

// Exclusive означает, что налог начисляется сверх цены.
type Exclusive struct {
	Rate decimal.Decimal
}

// Split начисляет налог на сумму строки.
func (m Exclusive) Split(lineTotal decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return lineTotal, lineTotal.Mul(m.Rate).Div(hundred)
}

// RatePercent возвращает ставку налога в процентах.
func (m Exclusive) RatePercent() decimal.Decimal { return m.Rate }

func (Exclusive) sealed() {}

// NewTaxMode строит режим налога по ставке и признаку включения налога в цену.
func NewTaxMode(ratePercent decimal.Decimal, inclusive bool) TaxMode {
	if inclusive {
		return Inclusive{Rate: ratePercent}
	}
	return Exclusive{Rate: ratePercent}
}

// IsInclusive сообщает, включён ли налог в цену.
func IsInclusive(m TaxMode) bool {
	_, ok := m.(Inclusive)
	return ok
}
