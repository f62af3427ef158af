package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/minimart-pos/internal/billing"
	"github.com/mmeshcher/minimart-pos/internal/model"
)

// rupees переводит сумму в пайсах в рупии для JSON-ответа.
func rupees(paise int64) float64 {
	return billing.FromPaise(paise).InexactFloat64()
}

type productResponse struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Barcode       string  `json:"barcode,omitempty"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stock_quantity"`
	GSTRate       float64 `json:"gst_rate"`
	PriceInclGST  bool    `json:"price_incl_gst"`
	MinStockLevel int     `json:"min_stock_level"`
	LowStock      bool    `json:"low_stock"`
}

func newProductResponse(p model.Product) productResponse {
	return productResponse{
		ID:            p.ID,
		Name:          p.Name,
		Barcode:       p.Barcode,
		Price:         rupees(p.PricePaise),
		StockQuantity: p.StockQuantity,
		GSTRate:       p.GSTRate,
		PriceInclGST:  p.PriceInclGST,
		MinStockLevel: p.MinStockLevel,
		LowStock:      p.LowStock(),
	}
}

func newProductList(products []model.Product) []productResponse {
	res := make([]productResponse, 0, len(products))
	for _, p := range products {
		res = append(res, newProductResponse(p))
	}
	return res
}

type updateProductRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Barcode       string          `json:"barcode,omitempty" validate:"max=64"`
	Price         decimal.Decimal `json:"price"`
	GSTRate       float64         `json:"gst_rate" validate:"gte=0,lte=100"`
	PriceInclGST  bool            `json:"price_incl_gst"`
	MinStockLevel int             `json:"min_stock_level" validate:"gte=0"`
}

type createProductRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Barcode       string          `json:"barcode,omitempty" validate:"max=64"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity" validate:"gte=0"`
	GSTRate       float64         `json:"gst_rate" validate:"gte=0,lte=100"`
	PriceInclGST  bool            `json:"price_incl_gst"`
	MinStockLevel int             `json:"min_stock_level" validate:"gte=0"`
}

// CreateProduct добавляет товар в каталог.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	actorID, ok := cashierID(w, r)
	if !ok {
		return
	}

	var req createProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.service.CreateProduct(r.Context(), actorID, model.Product{
		Name:          req.Name,
		Barcode:       req.Barcode,
		PricePaise:    billing.ToPaise(req.Price),
		StockQuantity: req.StockQuantity,
		GSTRate:       req.GSTRate,
		PriceInclGST:  req.PriceInclGST,
		MinStockLevel: req.MinStockLevel,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newProductResponse(*p))
}

// UpdateProduct изменяет карточку товара. Остаток меняется через /stock.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	actorID, ok := cashierID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req updateProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.service.UpdateProduct(r.Context(), actorID, id, model.ProductUpdate{
		Name:          req.Name,
		Barcode:       req.Barcode,
		PricePaise:    billing.ToPaise(req.Price),
		GSTRate:       req.GSTRate,
		PriceInclGST:  req.PriceInclGST,
		MinStockLevel: req.MinStockLevel,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(*p))
}

// DeleteProduct убирает товар из каталога.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	actorID, ok := cashierID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(r.Context(), actorID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListProducts ищет товары по параметру search.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductList(products))
}

// GetProduct возвращает товар каталога.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(*p))
}

// ListLowStockProducts возвращает товары, которые пора дозаказать.
func (h *Handler) ListLowStockProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListLowStockProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductList(products))
}

type adjustStockRequest struct {
	Delta int    `json:"delta" validate:"required"`
	Note  string `json:"note,omitempty" validate:"max=255"`
}

// AdjustStock вручную изменяет остаток товара.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	actorID, ok := cashierID(w, r)
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req adjustStockRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.service.AdjustStock(r.Context(), actorID, productID, req.Delta, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(*p))
}

type stockMovementResponse struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Quantity  int    `json:"quantity"`
	Reference string `json:"reference,omitempty"`
	CreatedBy *int64 `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ListStockMovements возвращает журнал движения товара.
func (h *Handler) ListStockMovements(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	movements, err := h.service.ListStockMovements(r.Context(), productID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]stockMovementResponse, 0, len(movements))
	for _, m := range movements {
		resp = append(resp, stockMovementResponse{
			ID:        m.ID,
			Type:      string(m.Type),
			Quantity:  m.Quantity,
			Reference: m.Reference,
			CreatedBy: m.CreatedBy,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type customerResponse struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	Email         string  `json:"email,omitempty"`
	Address       string  `json:"address,omitempty"`
	DateOfBirth   string  `json:"date_of_birth,omitempty"`
	LoyaltyPoints int64   `json:"loyalty_points"`
	TotalSpent    float64 `json:"total_spent"`
}

func newCustomerResponse(c model.Customer) customerResponse {
	res := customerResponse{
		ID:            c.ID,
		Name:          c.Name,
		Phone:         c.Phone,
		Email:         c.Email,
		Address:       c.Address,
		LoyaltyPoints: c.LoyaltyPoints,
		TotalSpent:    rupees(c.TotalSpentPaise),
	}
	if c.DateOfBirth != nil {
		res.DateOfBirth = c.DateOfBirth.Format(dateLayout)
	}
	return res
}

type customerRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Phone       string `json:"phone" validate:"required,min=6,max=20"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Address     string `json:"address,omitempty" validate:"max=500"`
	DateOfBirth string `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

func (req customerRequest) customer(id int64) model.Customer {
	c := model.Customer{ID: id, Name: req.Name, Phone: req.Phone, Email: req.Email, Address: req.Address}
	if dob, err := time.Parse(dateLayout, req.DateOfBirth); err == nil {
		c.DateOfBirth = &dob
	}
	return c
}

// CreateCustomer регистрирует покупателя.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.service.CreateCustomer(r.Context(), req.customer(0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCustomerResponse(*c))
}

// UpdateCustomer изменяет контактные данные покупателя.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req customerRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.service.UpdateCustomer(r.Context(), req.customer(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCustomerResponse(*c))
}

// DeleteCustomer удаляет покупателя без истории покупок.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	actorID, ok := cashierID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteCustomer(r.Context(), actorID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCustomers ищет покупателей по имени или телефону.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListCustomers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]customerResponse, 0, len(customers))
	for _, c := range customers {
		resp = append(resp, newCustomerResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

type ledgerEntryResponse struct {
	TransactionID *int64  `json:"transaction_id,omitempty"`
	Earned        int64   `json:"earned"`
	Redeemed      int64   `json:"redeemed"`
	Discount      float64 `json:"discount"`
	CreatedAt     string  `json:"created_at"`
}

type customerDetailsResponse struct {
	customerResponse
	Ledger []ledgerEntryResponse `json:"ledger"`
}

// GetCustomer возвращает покупателя с журналом баллов.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	d, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := customerDetailsResponse{
		customerResponse: newCustomerResponse(d.Customer),
		Ledger:           make([]ledgerEntryResponse, 0, len(d.Ledger)),
	}
	for _, e := range d.Ledger {
		resp.Ledger = append(resp.Ledger, ledgerEntryResponse{
			TransactionID: e.TransactionID,
			Earned:        e.Earned,
			Redeemed:      e.Redeemed,
			Discount:      rupees(e.DiscountPaise),
			CreatedAt:     e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
