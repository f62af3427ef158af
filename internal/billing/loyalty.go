package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OverflowPolicy определяет поведение, когда скидка по баллам превышает сумму чека.
type OverflowPolicy string

const (
	// OverflowReject отклоняет списание целиком.
	OverflowReject OverflowPolicy = "reject"
	// OverflowCap ограничивает скидку суммой чека и списывает только нужные блоки баллов.
	OverflowCap OverflowPolicy = "cap"
)

// ParseOverflowPolicy разбирает название политики.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case OverflowReject, OverflowCap:
		return OverflowPolicy(s), nil
	}
	return "", fmt.Errorf("unknown loyalty overflow policy %q", s)
}

// Policy содержит правила программы лояльности.
type Policy struct {
	// BlockSize задаёт размер блока списания в баллах.
	BlockSize int64
	// PointValue задаёт стоимость одного балла в рупиях.
	PointValue decimal.Decimal
	// EarnDivisor задаёт, сколько рупий итоговой суммы дают один балл.
	EarnDivisor int64
	Overflow    OverflowPolicy
}

// DefaultPolicy возвращает правила магазина: блоки по 100 баллов, 1 балл = ₹5, 1 балл за каждые ₹100.
func DefaultPolicy() Policy {
	return Policy{
		BlockSize:   100,
		PointValue:  decimal.NewFromInt(5),
		EarnDivisor: 100,
		Overflow:    OverflowReject,
	}
}

// MaxRedeemable возвращает наибольшее число баллов, которое можно списать с баланса.
func (p Policy) MaxRedeemable(balance int64) int64 {
	if balance <= 0 || p.BlockSize <= 0 {
		return 0
	}
	return balance / p.BlockSize * p.BlockSize
}

// Discount возвращает сумму скидки за указанное число баллов.
func (p Policy) Discount(points int64) decimal.Decimal {
	return decimal.NewFromInt(points).Mul(p.PointValue)
}

// Earned возвращает число баллов за оплаченную сумму в целых рупиях.
func (p Policy) Earned(roundedTotal decimal.Decimal) int64 {
	if p.EarnDivisor <= 0 || !roundedTotal.IsPositive() {
		return 0
	}
	return roundedTotal.IntPart() / p.EarnDivisor
}

// Redemption описывает принятое списание баллов.
type Redemption struct {
	Points   int64
	Discount decimal.Decimal
}

// Redeem проверяет запрос на списание баллов.
// Любое нарушение правил отклоняет запрос целиком.
func (p Policy) Redeem(balance, points int64, total decimal.Decimal) (Redemption, error) {
	if points <= 0 {
		return Redemption{}, reject(ReasonPointsNotPositive, "points to redeem must be positive, got %d", points)
	}
	if points > balance {
		return Redemption{}, reject(ReasonExceedsBalance, "requested %d points, balance is %d", points, balance)
	}
	maxPoints := p.MaxRedeemable(balance)
	if points > maxPoints {
		return Redemption{}, reject(ReasonExceedsMaxRedeemable, "requested %d points, at most %d can be redeemed", points, maxPoints)
	}
	if points < p.BlockSize {
		return Redemption{}, reject(ReasonBelowMinimum, "minimum redemption is %d points", p.BlockSize)
	}
	if points%p.BlockSize != 0 {
		return Redemption{}, reject(ReasonNotBlockMultiple, "points must be redeemed in multiples of %d", p.BlockSize)
	}

	discount := p.Discount(points)
	if discount.LessThanOrEqual(total) {
		return Redemption{Points: points, Discount: discount}, nil
	}

	if p.Overflow != OverflowCap {
		return Redemption{}, reject(ReasonDiscountExceedsTotal, "discount %s exceeds bill total %s", discount.StringFixed(2), total.StringFixed(2))
	}

	blockValue := p.Discount(p.BlockSize)
	blocks := total.Div(blockValue).Ceil().IntPart()
	capped := blocks * p.BlockSize
	if capped > points {
		capped = points
	}
	return Redemption{Points: capped, Discount: decimal.Min(p.Discount(capped), total)}, nil
}
