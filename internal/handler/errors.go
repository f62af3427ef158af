package handler

import (
	"context"
	"errors"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mmeshcher/minimart-pos/internal/billing"
	"github.com/mmeshcher/minimart-pos/internal/checkout"
	"github.com/mmeshcher/minimart-pos/internal/repository"
	"github.com/mmeshcher/minimart-pos/internal/service"
	"github.com/mmeshcher/minimart-pos/internal/validation"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type inconsistentDetails struct {
	TransactionID int64  `json:"transaction_id"`
	InvoiceNumber string `json:"invoice_number"`
	Step          string `json:"step"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorResponse{Code: code, Message: message, Details: details})
}

// sentinelStatus сопоставляет известные ошибки с HTTP-статусом и кодом ответа.
var sentinelStatus = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},

	{repository.ErrCashierNotFound, http.StatusNotFound, "cashier_not_found"},
	{repository.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{repository.ErrCustomerNotFound, http.StatusNotFound, "customer_not_found"},
	{repository.ErrTransactionNotFound, http.StatusNotFound, "transaction_not_found"},
	{repository.ErrTransactionItemNotFound, http.StatusNotFound, "transaction_item_not_found"},

	{repository.ErrCashierExists, http.StatusConflict, "cashier_exists"},
	{repository.ErrCustomerExists, http.StatusConflict, "customer_exists"},
	{repository.ErrBarcodeExists, http.StatusConflict, "barcode_exists"},
	{repository.ErrCustomerInUse, http.StatusConflict, "customer_in_use"},
	{repository.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{repository.ErrInsufficientPoints, http.StatusConflict, "insufficient_points"},

	{checkout.ErrAlreadyCompleted, http.StatusConflict, "already_completed"},
	{checkout.ErrCheckoutInProgress, http.StatusConflict, "checkout_in_progress"},
	{checkout.ErrInvoiceAllocationExhausted, http.StatusConflict, "invoice_allocation_exhausted"},
}

// writeError переводит ошибку бизнес-логики в ответ {"code","message"}.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr       *validation.RequestError
		rejection    *billing.RejectionError
		inconsistent *checkout.InconsistentTransactionError
	)

	switch {
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, "invalid_request", reqErr.Error(), reqErr.Fields)
		return
	case errors.As(err, &rejection):
		writeError(w, http.StatusUnprocessableEntity, string(rejection.Reason), rejection.Message, nil)
		return
	case errors.As(err, &inconsistent):
		h.logger.Error("transaction left inconsistent",
			zap.Int64("transaction_id", inconsistent.TransactionID),
			zap.String("invoice", inconsistent.InvoiceNumber),
			zap.String("step", inconsistent.Step),
			zap.Error(inconsistent.Err))
		writeError(w, http.StatusInternalServerError, "inconsistent_transaction",
			"sale was recorded partially and needs manual correction",
			inconsistentDetails{
				TransactionID: inconsistent.TransactionID,
				InvoiceNumber: inconsistent.InvoiceNumber,
				Step:          inconsistent.Step,
			})
		return
	}

	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			writeError(w, s.status, s.code, err.Error(), nil)
			return
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.Warn("request timed out", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "timeout", "store did not respond in time", nil)
		return
	}

	h.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError), nil)
}
