package billing

import (
	"errors"
	"fmt"
)

// Reason задаёт код причины отказа в расчёте чека.
type Reason string

const (
	ReasonEmptyCart            Reason = "empty_cart"
	ReasonInvalidLine          Reason = "invalid_line"
	ReasonInvalidPayment       Reason = "invalid_payment_method"
	ReasonInsufficientCash     Reason = "insufficient_cash"
	ReasonNoCustomer           Reason = "no_customer"
	ReasonPointsNotPositive    Reason = "points_not_positive"
	ReasonExceedsBalance       Reason = "exceeds_balance"
	ReasonExceedsMaxRedeemable Reason = "exceeds_max_redeemable"
	ReasonBelowMinimum         Reason = "below_minimum"
	ReasonNotBlockMultiple     Reason = "not_block_multiple"
	ReasonDiscountExceedsTotal Reason = "discount_exceeds_total"
)

// RejectionError возвращается, когда входные данные чека не проходят проверку.
// Отказ происходит до любых обращений к хранилищу.
type RejectionError struct {
	Reason  Reason
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("checkout rejected (%s): %s", e.Reason, e.Message)
}

func reject(reason Reason, format string, args ...any) error {
	return &RejectionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ReasonOf извлекает код причины отказа из ошибки.
func ReasonOf(err error) (Reason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
