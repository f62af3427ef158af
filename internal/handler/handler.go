// Package handler содержит HTTP-обработчики API кассового сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/minimart-pos/internal/checkout"
	"github.com/mmeshcher/minimart-pos/internal/metrics"
	"github.com/mmeshcher/minimart-pos/internal/middleware"
	"github.com/mmeshcher/minimart-pos/internal/model"
	"github.com/mmeshcher/minimart-pos/internal/service"
	"github.com/mmeshcher/minimart-pos/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterCashier(ctx context.Context, login, password, fullName string) (*model.Cashier, error)
	AuthenticateCashier(ctx context.Context, login, password string) (*model.Cashier, error)
	GetCashier(ctx context.Context, id int64) (*model.Cashier, error)
	ListCashiers(ctx context.Context, actorID int64) ([]model.Cashier, error)
	ChangeCashierRole(ctx context.Context, actorID, id int64, role model.CashierRole) (*model.Cashier, error)

	CreateProduct(ctx context.Context, actorID int64, p model.Product) (*model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context, search string) ([]model.Product, error)
	ListLowStockProducts(ctx context.Context) ([]model.Product, error)
	UpdateProduct(ctx context.Context, actorID, id int64, u model.ProductUpdate) (*model.Product, error)
	DeleteProduct(ctx context.Context, actorID, id int64) error
	AdjustStock(ctx context.Context, actorID, productID int64, delta int, note string) (*model.Product, error)
	ListStockMovements(ctx context.Context, productID int64, limit int) ([]model.StockMovement, error)

	CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error)
	ListCustomers(ctx context.Context, search string) ([]model.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*service.CustomerDetails, error)
	UpdateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error)
	DeleteCustomer(ctx context.Context, actorID, id int64) error

	GetSettings(ctx context.Context) (*model.StoreSettings, error)
	UpdateSettings(ctx context.Context, actorID int64, s model.StoreSettings) (*model.StoreSettings, error)

	ListTransactions(ctx context.Context, q service.TransactionQuery) ([]model.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	CorrectTransaction(ctx context.Context, actorID, id int64, c service.TransactionCorrection) (*model.Transaction, error)
	DeleteTransaction(ctx context.Context, actorID, id int64) error
	SalesSummary(ctx context.Context, days int) (*model.SalesSummary, error)
}

// Checkout оформляет и рассчитывает продажи.
type Checkout interface {
	Checkout(ctx context.Context, req checkout.Request) (*model.Receipt, error)
	Quote(ctx context.Context, req checkout.Request) (*checkout.Quote, error)
}

// Handler реализует HTTP-обработчики API кассового сервиса.
type Handler struct {
	service        Service
	checkout       Checkout
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        *metrics.Metrics
	validate       *validation.Validator
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. m может быть nil.
func NewHandler(s Service, co Checkout, logger *zap.Logger, auth *middleware.AuthMiddleware, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        s,
		checkout:       co,
		logger:         logger,
		authMiddleware: auth,
		metrics:        m,
		validate:       validation.NewValidator(),
	}
}

// decodeJSON читает JSON-тело запроса.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_json", err.Error(), nil)
		return false
	}
	return true
}

// decode читает JSON-тело запроса и проверяет его по тегам validate.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decodeJSON(w, r, dst) {
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// cashierID возвращает идентификатор кассира из сессии.
func cashierID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetCashierIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", http.StatusText(http.StatusUnauthorized), nil)
	}
	return id, ok
}

// pathID разбирает числовой параметр маршрута.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "path parameter "+name+" must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

// queryInt разбирает необязательный числовой параметр запроса.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeError(w, http.StatusBadRequest, "invalid_query", "query parameter "+name+" must be a non-negative integer", nil)
		return 0, false
	}
	return v, true
}

type credentialsRequest struct {
	Login    string `json:"login" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=4,max=72"`
	FullName string `json:"full_name,omitempty" validate:"max=128"`
}

type cashierResponse struct {
	ID       int64  `json:"id"`
	Login    string `json:"login"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

func newCashierResponse(c *model.Cashier) cashierResponse {
	return cashierResponse{ID: c.ID, Login: c.Login, FullName: c.FullName, Role: string(c.Role)}
}

// Register регистрирует кассира и открывает сессию.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.service.RegisterCashier(r.Context(), req.Login, req.Password, req.FullName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, c.ID)
	writeJSON(w, http.StatusOK, newCashierResponse(c))
}

// Login проверяет логин и пароль кассира и открывает сессию.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.service.AuthenticateCashier(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.logger.Info("failed login attempt", zap.String("login", req.Login))
		}
		h.writeError(w, r, err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, c.ID)
	writeJSON(w, http.StatusOK, newCashierResponse(c))
}

// Me возвращает кассира текущей сессии.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := cashierID(w, r)
	if !ok {
		return
	}

	c, err := h.service.GetCashier(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newCashierResponse(c))
}

// ListCashiers возвращает сотрудников магазина.
func (h *Handler) ListCashiers(w http.ResponseWriter, r *http.Request) {
	actorID, ok := cashierID(w, r)
	if !ok {
		return
	}

	cashiers, err := h.service.ListCashiers(r.Context(), actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]cashierResponse, 0, len(cashiers))
	for i := range cashiers {
		resp = append(resp, newCashierResponse(&cashiers[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,cashier_role"`
}

// ChangeCashierRole назначает сотруднику роль.
func (h *Handler) ChangeCashierRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := cashierID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req changeRoleRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.service.ChangeCashierRole(r.Context(), actorID, id, model.CashierRole(req.Role))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCashierResponse(c))
}
