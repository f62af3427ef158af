package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/minimart-pos/internal/billing"
	"github.com/mmeshcher/minimart-pos/internal/model"
	"github.com/mmeshcher/minimart-pos/internal/service"
)

const dateLayout = "2006-01-02"

// parseTime принимает дату YYYY-MM-DD или время в RFC 3339.
func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, raw, time.Local)
}

type transactionListQuery struct {
	Status  string `json:"status" validate:"omitempty,oneof=pending completed cancelled"`
	Invoice string `json:"invoice" validate:"omitempty,invoice_number"`
}

// ListTransactions возвращает историю чеков. Параметры: from, to, status, invoice, limit.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := transactionListQuery{Status: query.Get("status"), Invoice: query.Get("invoice")}
	if err := h.validate.Struct(params); err != nil {
		h.writeError(w, r, err)
		return
	}

	q := service.TransactionQuery{
		Status:        model.TransactionStatus(params.Status),
		InvoiceNumber: params.Invoice,
	}
	for name, dst := range map[string]*time.Time{"from": &q.From, "to": &q.To} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "query parameter "+name+" must be a date (YYYY-MM-DD) or RFC 3339 time", nil)
			return
		}
		*dst = t
	}

	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	q.Limit = limit

	transactions, err := h.service.ListTransactions(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp = append(resp, newTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTransaction возвращает чек со строками.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionResponse(*t))
}

type itemCorrectionRequest struct {
	ID          int64           `json:"id" validate:"required,gt=0"`
	ProductName string          `json:"product_name,omitempty" validate:"max=200"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type correctTransactionRequest struct {
	Status        string                  `json:"status,omitempty" validate:"omitempty,oneof=completed cancelled"`
	PaymentMethod string                  `json:"payment_method,omitempty" validate:"omitempty,payment_method"`
	CustomerName  *string                 `json:"customer_name,omitempty" validate:"omitempty,max=200"`
	CustomerPhone *string                 `json:"customer_phone,omitempty" validate:"omitempty,max=20"`
	CashReceived  *decimal.Decimal        `json:"cash_received,omitempty"`
	Items         []itemCorrectionRequest `json:"items,omitempty" validate:"omitempty,dive"`
}

func (req correctTransactionRequest) correction() service.TransactionCorrection {
	c := service.TransactionCorrection{
		Status:        model.TransactionStatus(req.Status),
		PaymentMethod: model.PaymentMethod(req.PaymentMethod),
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
	}
	if req.CashReceived != nil {
		paise := billing.ToPaise(*req.CashReceived)
		c.CashReceivedPaise = &paise
	}
	for _, it := range req.Items {
		c.Items = append(c.Items, service.ItemCorrection{
			ID:             it.ID,
			ProductName:    it.ProductName,
			Quantity:       it.Quantity,
			UnitPricePaise: billing.ToPaise(it.UnitPrice),
		})
	}
	return c
}

// CorrectTransaction выполняет административное исправление чека.
func (h *Handler) CorrectTransaction(w http.ResponseWriter, r *http.Request) {
	actorID, ok := cashierID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req correctTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}

	t, err := h.service.CorrectTransaction(r.Context(), actorID, id, req.correction())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionResponse(*t))
}

// DeleteTransaction удаляет чек.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	actorID, ok := cashierID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteTransaction(r.Context(), actorID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type salesSummaryResponse struct {
	From             string  `json:"from"`
	Today            float64 `json:"today_sales"`
	Period           float64 `json:"period_sales"`
	Transactions     int64   `json:"transactions"`
	AverageOrder     float64 `json:"average_order_value"`
	TopPaymentMethod string  `json:"top_payment_method,omitempty"`
	Products         int64   `json:"products"`
	Customers        int64   `json:"customers"`
}

// SalesSummary возвращает сводку продаж за последние days дней.
func (h *Handler) SalesSummary(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days")
	if !ok {
		return
	}

	s, err := h.service.SalesSummary(r.Context(), days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, salesSummaryResponse{
		From:             s.From.Format(dateLayout),
		Today:            rupees(s.TodayPaise),
		Period:           rupees(s.PeriodPaise),
		Transactions:     s.Transactions,
		AverageOrder:     rupees(s.AverageOrderPaise),
		TopPaymentMethod: string(s.TopPaymentMethod),
		Products:         s.Products,
		Customers:        s.Customers,
	})
}

// GetSettings возвращает реквизиты магазина.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings сохраняет реквизиты магазина.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	actorID, ok := cashierID(w, r)
	if !ok {
		return
	}

	var req model.StoreSettings
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.service.UpdateSettings(r.Context(), actorID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
