package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/minimart-pos/internal/checkout"
	"github.com/mmeshcher/minimart-pos/internal/model"
)

// idempotencyHeader позволяет передать ключ продажи заголовком вместо поля тела.
const idempotencyHeader = "Idempotency-Key"

type itemResponse struct {
	ID           int64   `json:"id,omitempty"`
	ProductID    int64   `json:"product_id"`
	ProductName  string  `json:"product_name"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	GSTRate      float64 `json:"gst_rate"`
	PriceInclGST bool    `json:"price_incl_gst"`
	Total        float64 `json:"total"`
}

func newItemResponses(items []model.TransactionItem) []itemResponse {
	res := make([]itemResponse, 0, len(items))
	for _, it := range items {
		res = append(res, itemResponse{
			ID:           it.ID,
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			Quantity:     it.Quantity,
			UnitPrice:    rupees(it.UnitPricePaise),
			GSTRate:      it.GSTRate,
			PriceInclGST: it.PriceInclGST,
			Total:        rupees(it.TotalPaise),
		})
	}
	return res
}

type transactionResponse struct {
	ID                 int64          `json:"id"`
	InvoiceNumber      string         `json:"invoice_number"`
	Status             string         `json:"status"`
	CashierID          int64          `json:"cashier_id"`
	CustomerID         *int64         `json:"customer_id,omitempty"`
	CustomerName       string         `json:"customer_name,omitempty"`
	CustomerPhone      string         `json:"customer_phone,omitempty"`
	Subtotal           float64        `json:"subtotal"`
	GST                float64        `json:"gst_amount"`
	LoyaltyDiscount    float64        `json:"loyalty_discount"`
	RoundingAdjustment float64        `json:"rounding_adjustment"`
	Total              float64        `json:"total"`
	PaymentMethod      string         `json:"payment_method"`
	CashReceived       *float64       `json:"cash_received,omitempty"`
	Change             *float64       `json:"change,omitempty"`
	PointsEarned       int64          `json:"points_earned"`
	PointsRedeemed     int64          `json:"points_redeemed"`
	CreatedAt          string         `json:"created_at"`
	Items              []itemResponse `json:"items,omitempty"`
}

func optionalRupees(paise *int64) *float64 {
	if paise == nil {
		return nil
	}
	v := rupees(*paise)
	return &v
}

func newTransactionResponse(t model.Transaction) transactionResponse {
	return transactionResponse{
		ID:                 t.ID,
		InvoiceNumber:      t.InvoiceNumber,
		Status:             string(t.Status),
		CashierID:          t.CashierID,
		CustomerID:         t.CustomerID,
		CustomerName:       t.CustomerName,
		CustomerPhone:      t.CustomerPhone,
		Subtotal:           rupees(t.SubtotalPaise),
		GST:                rupees(t.GSTPaise),
		LoyaltyDiscount:    rupees(t.LoyaltyDiscountPaise),
		RoundingAdjustment: rupees(t.RoundingPaise),
		Total:              rupees(t.TotalPaise),
		PaymentMethod:      string(t.PaymentMethod),
		CashReceived:       optionalRupees(t.CashReceivedPaise),
		Change:             optionalRupees(t.ChangePaise),
		PointsEarned:       t.LoyaltyEarned,
		PointsRedeemed:     t.LoyaltyRedeemed,
		CreatedAt:          t.CreatedAt.Format(time.RFC3339),
		Items:              newItemResponses(t.Items),
	}
}

type receiptResponse struct {
	Transaction transactionResponse `json:"transaction"`
	Cashier     string              `json:"cashier"`
	Customer    *customerResponse   `json:"customer,omitempty"`
	Store       model.StoreSettings `json:"store"`
}

func newReceiptResponse(rc *model.Receipt) receiptResponse {
	res := receiptResponse{
		Transaction: newTransactionResponse(rc.Transaction),
		Store:       rc.Store,
	}
	if rc.Cashier != nil {
		res.Cashier = rc.Cashier.FullName
		if res.Cashier == "" {
			res.Cashier = rc.Cashier.Login
		}
	}
	if rc.Customer != nil {
		c := newCustomerResponse(*rc.Customer)
		res.Customer = &c
	}
	return res
}

// readCheckoutRequest разбирает тело продажи и подставляет кассира из сессии.
func readCheckoutRequest(w http.ResponseWriter, r *http.Request) (checkout.Request, bool) {
	var req checkout.Request

	id, ok := cashierID(w, r)
	if !ok {
		return req, false
	}
	if !decodeJSON(w, r, &req) {
		return req, false
	}

	req.CashierID = id
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get(idempotencyHeader))
	}
	return req, true
}

// Checkout оформляет продажу и возвращает чек.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	req, ok := readCheckoutRequest(w, r)
	if !ok {
		return
	}

	receipt, err := h.checkout.Checkout(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newReceiptResponse(receipt))
}

type quoteLineResponse struct {
	itemResponse
	TaxableValue float64 `json:"taxable_value"`
	Tax          float64 `json:"tax"`
}

type quoteResponse struct {
	Items              []quoteLineResponse `json:"items"`
	Subtotal           float64             `json:"subtotal"`
	GST                float64             `json:"gst_amount"`
	PreDiscountTotal   float64             `json:"pre_discount_total"`
	LoyaltyDiscount    float64             `json:"loyalty_discount"`
	PointsRedeemed     int64               `json:"points_redeemed"`
	TotalAfterLoyalty  float64             `json:"total_after_loyalty"`
	RoundedTotal       float64             `json:"rounded_total"`
	RoundingAdjustment float64             `json:"rounding_adjustment"`
	CashReceived       *float64            `json:"cash_received,omitempty"`
	ChangeDue          float64             `json:"change_due"`
	PointsEarned       int64               `json:"points_earned"`
	Customer           *customerResponse   `json:"customer,omitempty"`
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Quote рассчитывает чек по текущим ценам каталога без записи продажи.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	req, ok := readCheckoutRequest(w, r)
	if !ok {
		return
	}

	q, err := h.checkout.Quote(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res := q.Result
	items := newItemResponses(q.Items)
	resp := quoteResponse{
		Items:              make([]quoteLineResponse, 0, len(items)),
		Subtotal:           money(res.Subtotal),
		GST:                money(res.TaxAmount),
		PreDiscountTotal:   money(res.PreDiscountTotal),
		LoyaltyDiscount:    money(res.LoyaltyDiscount),
		PointsRedeemed:     res.PointsRedeemed,
		TotalAfterLoyalty:  money(res.TotalAfterLoyalty),
		RoundedTotal:       money(res.RoundedTotal),
		RoundingAdjustment: money(res.RoundingAdjustment),
		ChangeDue:          money(res.ChangeDue),
		PointsEarned:       res.PointsEarned,
	}
	for i, it := range items {
		line := quoteLineResponse{itemResponse: it}
		if i < len(res.Lines) {
			line.TaxableValue = money(res.Lines[i].Base)
			line.Tax = money(res.Lines[i].Tax)
		}
		resp.Items = append(resp.Items, line)
	}
	if res.CashReceived != nil {
		v := money(*res.CashReceived)
		resp.CashReceived = &v
	}
	if q.Customer != nil {
		c := newCustomerResponse(*q.Customer)
		resp.Customer = &c
	}

	writeJSON(w, http.StatusOK, resp)
}
