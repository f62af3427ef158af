// Package model содержит доменные сущности кассового сервиса мини-маркета.
package model

import "time"

// Все денежные суммы хранятся в пайсах (1/100 рупии).

// CashierRole описывает роль сотрудника.
type CashierRole string

const (
	CashierRoleAdmin   CashierRole = "admin"
	CashierRoleManager CashierRole = "manager"
	CashierRoleCashier CashierRole = "cashier"
)

// Valid сообщает, известна ли роль.
func (r CashierRole) Valid() bool {
	switch r {
	case CashierRoleAdmin, CashierRoleManager, CashierRoleCashier:
		return true
	}
	return false
}

// Cashier представляет сотрудника, работающего с кассой.
type Cashier struct {
	ID           int64
	Login        string
	PasswordHash []byte
	FullName     string
	Role         CashierRole
	CreatedAt    time.Time
}

// IsAdmin сообщает, может ли сотрудник выполнять административные исправления.
func (c *Cashier) IsAdmin() bool {
	return c != nil && c.Role == CashierRoleAdmin
}

// Product описывает товар каталога.
type Product struct {
	ID            int64
	Name          string
	Barcode       string
	PricePaise    int64
	StockQuantity int
	GSTRate       float64
	PriceInclGST  bool
	MinStockLevel int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProductUpdate описывает изменение карточки товара. Остаток меняется только
// через движения товара.
type ProductUpdate struct {
	Name          string
	Barcode       string
	PricePaise    int64
	GSTRate       float64
	PriceInclGST  bool
	MinStockLevel int
}

// LowStock сообщает, опустился ли остаток до порогового значения.
func (p Product) LowStock() bool {
	return p.StockQuantity <= p.MinStockLevel
}

// Customer описывает покупателя программы лояльности.
type Customer struct {
	ID              int64
	Name            string
	Phone           string
	Email           string
	Address         string
	DateOfBirth     *time.Time
	LoyaltyPoints   int64
	TotalSpentPaise int64
	CreatedAt       time.Time
}

// PaymentMethod описывает способ оплаты чека.
type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodUPI  PaymentMethod = "upi"
)

// Valid сообщает, входит ли способ оплаты в допустимый набор.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodUPI:
		return true
	}
	return false
}

// TransactionStatus описывает статус чека.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Valid сообщает, входит ли статус в допустимый набор.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusCancelled:
		return true
	}
	return false
}

// Transaction описывает заголовок чека.
type Transaction struct {
	ID                   int64
	InvoiceNumber        string
	InvoicePrefix        string
	InvoiceSeq           int64
	IdempotencyKey       string
	CashierID            int64
	CustomerID           *int64
	CustomerName         string
	CustomerPhone        string
	SubtotalPaise        int64
	GSTPaise             int64
	TotalPaise           int64
	RoundingPaise        int64
	LoyaltyEarned        int64
	LoyaltyRedeemed      int64
	LoyaltyDiscountPaise int64
	PaymentMethod        PaymentMethod
	CashReceivedPaise    *int64
	ChangePaise          *int64
	Status               TransactionStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Items []TransactionItem
}

// TransactionItem хранит неизменяемый снимок строки корзины на момент продажи.
type TransactionItem struct {
	ID             int64
	TransactionID  int64
	ProductID      int64
	ProductName    string
	Quantity       int
	UnitPricePaise int64
	GSTRate        float64
	PriceInclGST   bool
	TotalPaise     int64
}

// LoyaltyDelta описывает изменение баланса покупателя по итогам продажи.
type LoyaltyDelta struct {
	Earned     int64
	Redeemed   int64
	SpentPaise int64
}

// LoyaltyLedgerEntry описывает запись журнала начислений и списаний баллов.
// TransactionID равен nil, если чек удалён администратором.
type LoyaltyLedgerEntry struct {
	ID            int64
	CustomerID    int64
	TransactionID *int64
	Earned        int64
	Redeemed      int64
	DiscountPaise int64
	CreatedAt     time.Time
}

// StockMovementType описывает причину изменения остатка.
type StockMovementType string

const (
	StockMovementSale       StockMovementType = "sale"
	StockMovementAdjustment StockMovementType = "adjustment"
)

// StockMovement описывает запись журнала движения товара.
type StockMovement struct {
	ID        int64
	ProductID int64
	Type      StockMovementType
	Quantity  int
	Reference string
	CreatedBy *int64
	CreatedAt time.Time
}

// StoreSettings содержит реквизиты магазина для чека.
type StoreSettings struct {
	StoreName      string `json:"store_name"`
	StoreAddress   string `json:"store_address"`
	StorePhone     string `json:"store_phone"`
	GSTNumber      string `json:"gst_number"`
	DefaultGSTRate string `json:"default_gst_rate"`
	ReceiptFooter  string `json:"receipt_footer"`
}

// Receipt собирает данные для печати чека.
type Receipt struct {
	Transaction    Transaction
	Customer       *Customer
	Cashier        *Cashier
	Store          StoreSettings
	PointsEarned   int64
	PointsRedeemed int64
}

// SalesSummary содержит сводку продаж за период.
type SalesSummary struct {
	From              time.Time
	TodayPaise        int64
	PeriodPaise       int64
	Transactions      int64
	AverageOrderPaise int64
	TopPaymentMethod  PaymentMethod
	Products          int64
	Customers         int64
}
