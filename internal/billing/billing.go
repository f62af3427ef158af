// Package billing рассчитывает итог чека: налог по строкам, скидку по баллам,
// округление до рупии, сдачу и начисление баллов.
//
// Расчёт не выполняет ввода-вывода и детерминирован: одинаковые входные
// данные всегда дают одинаковый результат.
package billing

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/minimart-pos/internal/model"
)

// Line описывает строку корзины со снимком цены и налога на момент добавления.
type Line struct {
	ProductID int64
	UnitPrice decimal.Decimal
	Quantity  int
	Tax       TaxMode
}

// Total возвращает сумму строки до учёта налога: цена × количество.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Request содержит входные данные расчёта.
type Request struct {
	Lines []Line
	// RedeemPoints задаёт число баллов к списанию. 0 означает расчёт без списания.
	RedeemPoints int64
	// HasCustomer сообщает, привязан ли к продаже покупатель.
	HasCustomer    bool
	LoyaltyBalance int64
	PaymentMethod  model.PaymentMethod
	// CashReceived учитывается только при оплате наличными.
	CashReceived *decimal.Decimal
}

// LineResult раскладывает одну строку на базу и налог.
type LineResult struct {
	Line  Line
	Total decimal.Decimal
	Base  decimal.Decimal
	Tax   decimal.Decimal
}

// Result содержит итог расчёта чека.
type Result struct {
	Lines              []LineResult
	Subtotal           decimal.Decimal
	TaxAmount          decimal.Decimal
	PreDiscountTotal   decimal.Decimal
	LoyaltyDiscount    decimal.Decimal
	PointsRedeemed     int64
	TotalAfterLoyalty  decimal.Decimal
	RoundedTotal       decimal.Decimal
	RoundingAdjustment decimal.Decimal
	CashReceived       *decimal.Decimal
	ChangeDue          decimal.Decimal
	PointsEarned       int64
}

// Engine рассчитывает чеки по заданным правилам лояльности.
type Engine struct {
	policy Policy
}

// NewEngine создаёт калькулятор чеков.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy возвращает действующие правила лояльности.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Calculate рассчитывает итог чека. Ошибка всегда имеет тип *RejectionError.
func (e *Engine) Calculate(req Request) (Result, error) {
	if len(req.Lines) == 0 {
		return Result{}, reject(ReasonEmptyCart, "cart is empty")
	}
	if !req.PaymentMethod.Valid() {
		return Result{}, reject(ReasonInvalidPayment, "unknown payment method %q", req.PaymentMethod)
	}

	res := Result{Lines: make([]LineResult, 0, len(req.Lines))}

	var baseSum, taxSum decimal.Decimal
	for i, l := range req.Lines {
		if err := validateLine(i, l); err != nil {
			return Result{}, err
		}
		total := l.Total()
		base, tax := l.Tax.Split(total)
		baseSum = baseSum.Add(base)
		taxSum = taxSum.Add(tax)
		res.Lines = append(res.Lines, LineResult{Line: l, Total: total, Base: base, Tax: tax})
	}

	// Налог считается как разность округлённых сумм, чтобы subtotal + tax
	// в точности давали сумму до скидки.
	res.PreDiscountTotal = baseSum.Add(taxSum).Round(2)
	res.Subtotal = baseSum.Round(2)
	res.TaxAmount = res.PreDiscountTotal.Sub(res.Subtotal)

	if req.RedeemPoints != 0 {
		if !req.HasCustomer {
			return Result{}, reject(ReasonNoCustomer, "loyalty redemption requires a customer")
		}
		r, err := e.policy.Redeem(req.LoyaltyBalance, req.RedeemPoints, res.PreDiscountTotal)
		if err != nil {
			return Result{}, err
		}
		res.PointsRedeemed = r.Points
		res.LoyaltyDiscount = r.Discount
	}

	res.TotalAfterLoyalty = res.PreDiscountTotal.Sub(res.LoyaltyDiscount)
	res.RoundedTotal = res.TotalAfterLoyalty.Round(0)
	res.RoundingAdjustment = res.RoundedTotal.Sub(res.TotalAfterLoyalty)

	if req.HasCustomer {
		res.PointsEarned = e.policy.Earned(res.RoundedTotal)
	}

	if req.PaymentMethod == model.PaymentMethodCash {
		cash := decimal.Zero
		if req.CashReceived != nil {
			cash = *req.CashReceived
		}
		if cash.LessThan(res.RoundedTotal) {
			return Result{}, reject(ReasonInsufficientCash, "cash received %s is less than total %s", cash.StringFixed(2), res.RoundedTotal.StringFixed(2))
		}
		res.CashReceived = &cash
		res.ChangeDue = cash.Sub(res.RoundedTotal)
	}

	return res, nil
}

func validateLine(i int, l Line) error {
	switch {
	case l.Tax == nil:
		return reject(ReasonInvalidLine, "line %d: tax mode is missing", i)
	case !l.UnitPrice.IsPositive():
		return reject(ReasonInvalidLine, "line %d: unit price must be positive", i)
	case l.Quantity < 1:
		return reject(ReasonInvalidLine, "line %d: quantity must be at least 1", i)
	case l.Tax.RatePercent().IsNegative():
		return reject(ReasonInvalidLine, "line %d: tax rate must not be negative", i)
	}
	return nil
}
