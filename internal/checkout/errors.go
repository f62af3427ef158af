package checkout

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyCompleted возвращается, если продажа с этим ключом идемпотентности уже сохранена.
	ErrAlreadyCompleted = errors.New("checkout with this idempotency key is already completed")
	// ErrCheckoutInProgress возвращается, если продажа с этим ключом идемпотентности выполняется прямо сейчас.
	ErrCheckoutInProgress = errors.New("checkout with this idempotency key is in progress")
	// ErrInvoiceAllocationExhausted возвращается, если свободный номер счёта не удалось получить за отведённое число попыток.
	ErrInvoiceAllocationExhausted = errors.New("could not allocate a free invoice number")
)

// Шаги продажи после сохранения заголовка чека.
const (
	StepInsertItems    = "insert_items"
	StepDecrementStock = "decrement_stock"
	StepUpdateLoyalty  = "update_loyalty"
	StepMarkCompleted  = "mark_completed"
)

// InconsistentTransactionError возвращается, если заголовок чека уже сохранён,
// а один из следующих шагов не выполнен. Чек остаётся в статусе pending
// до ручного исправления.
type InconsistentTransactionError struct {
	TransactionID int64
	InvoiceNumber string
	Step          string
	Err           error
}

func (e *InconsistentTransactionError) Error() string {
	return fmt.Sprintf("transaction %s (id %d) left pending, step %s failed: %v",
		e.InvoiceNumber, e.TransactionID, e.Step, e.Err)
}

func (e *InconsistentTransactionError) Unwrap() error {
	return e.Err
}
