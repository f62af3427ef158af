// Package printer предоставляет клиент для внешнего спулера печати чеков.
package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/minimart-pos/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие со спулером печати.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ReceiptLine описывает строку чека для печати.
type ReceiptLine struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	GSTRate   float64 `json:"gst_rate"`
	Total     float64 `json:"total"`
}

// ReceiptDocument описывает тело запроса на печать чека.
type ReceiptDocument struct {
	InvoiceNumber   string        `json:"invoice_number"`
	IssuedAt        time.Time     `json:"issued_at"`
	StoreName       string        `json:"store_name"`
	StoreAddress    string        `json:"store_address,omitempty"`
	StorePhone      string        `json:"store_phone,omitempty"`
	GSTNumber       string        `json:"gst_number,omitempty"`
	Cashier         string        `json:"cashier,omitempty"`
	Customer        string        `json:"customer,omitempty"`
	CustomerPhone   string        `json:"customer_phone,omitempty"`
	Lines           []ReceiptLine `json:"lines"`
	Subtotal        float64       `json:"subtotal"`
	GST             float64       `json:"gst"`
	LoyaltyDiscount float64       `json:"loyalty_discount,omitempty"`
	Rounding        float64       `json:"rounding"`
	Total           float64       `json:"total"`
	PaymentMethod   string        `json:"payment_method"`
	CashReceived    *float64      `json:"cash_received,omitempty"`
	Change          *float64      `json:"change,omitempty"`
	PointsEarned    int64         `json:"points_earned,omitempty"`
	PointsRedeemed  int64         `json:"points_redeemed,omitempty"`
	PointsBalance   *int64        `json:"points_balance,omitempty"`
	Footer          string        `json:"footer,omitempty"`
}

// NewClient создаёт HTTP-клиент для обращения к спулеру печати по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// SendReceipt передаёт чек на печать. При ответе 429 возвращает код и паузу из Retry-After без ошибки.
func (c *Client) SendReceipt(ctx context.Context, doc ReceiptDocument) (int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return 0, 0, fmt.Errorf("printer client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return 0, 0, fmt.Errorf("encode receipt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/receipts", bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return resp.StatusCode, retryAfter, nil
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return resp.StatusCode, 0, nil
	}

	return resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
}

// NewReceiptDocument собирает документ для печати из агрегата чека.
func NewReceiptDocument(r model.Receipt) ReceiptDocument {
	t := r.Transaction

	doc := ReceiptDocument{
		InvoiceNumber:   t.InvoiceNumber,
		IssuedAt:        t.CreatedAt,
		StoreName:       r.Store.StoreName,
		StoreAddress:    r.Store.StoreAddress,
		StorePhone:      r.Store.StorePhone,
		GSTNumber:       r.Store.GSTNumber,
		CustomerPhone:   t.CustomerPhone,
		Customer:        t.CustomerName,
		Lines:           make([]ReceiptLine, 0, len(t.Items)),
		Subtotal:        rupees(t.SubtotalPaise),
		GST:             rupees(t.GSTPaise),
		LoyaltyDiscount: rupees(t.LoyaltyDiscountPaise),
		Rounding:        rupees(t.RoundingPaise),
		Total:           rupees(t.TotalPaise),
		PaymentMethod:   string(t.PaymentMethod),
		PointsEarned:    r.PointsEarned,
		PointsRedeemed:  r.PointsRedeemed,
		Footer:          r.Store.ReceiptFooter,
	}

	if r.Cashier != nil {
		doc.Cashier = r.Cashier.FullName
		if doc.Cashier == "" {
			doc.Cashier = r.Cashier.Login
		}
	}
	if r.Customer != nil {
		balance := r.Customer.LoyaltyPoints
		doc.PointsBalance = &balance
	}
	if t.CashReceivedPaise != nil {
		v := rupees(*t.CashReceivedPaise)
		doc.CashReceived = &v
	}
	if t.ChangePaise != nil {
		v := rupees(*t.ChangePaise)
		doc.Change = &v
	}

	for _, it := range t.Items {
		doc.Lines = append(doc.Lines, ReceiptLine{
			Name:      it.ProductName,
			Quantity:  it.Quantity,
			UnitPrice: rupees(it.UnitPricePaise),
			GSTRate:   it.GSTRate,
			Total:     rupees(it.TotalPaise),
		})
	}

	return doc
}

func rupees(paise int64) float64 {
	return float64(paise) / 100
}
