// Package service реализует бизнес-логику кассового сервиса вокруг оформления
// продаж: учётные записи кассиров, каталог, покупателей, историю чеков и настройки.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/minimart-pos/internal/model"
	"github.com/mmeshcher/minimart-pos/internal/repository"
)

var (
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden возвращается, если роли кассира недостаточно для операции.
	ErrForbidden = errors.New("operation not permitted for this role")
	// ErrInvalidInput возвращается при нарушении правил для входных данных.
	ErrInvalidInput = errors.New("invalid input")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	CreateCashier(ctx context.Context, c model.Cashier) (int64, error)
	GetCashierByLogin(ctx context.Context, login string) (*model.Cashier, error)
	GetCashier(ctx context.Context, id int64) (*model.Cashier, error)
	CountCashiers(ctx context.Context) (int64, error)
	LockCashierRegistration(ctx context.Context) error
	ListCashiers(ctx context.Context) ([]model.Cashier, error)
	UpdateCashierRole(ctx context.Context, id int64, role model.CashierRole) (*model.Cashier, error)

	CreateProduct(ctx context.Context, p model.Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context, search string) ([]model.Product, error)
	ListLowStockProducts(ctx context.Context) ([]model.Product, error)
	UpdateProduct(ctx context.Context, id int64, u model.ProductUpdate) (*model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	AdjustStock(ctx context.Context, productID int64, delta int, note string, cashierID int64) (*model.Product, error)
	ListStockMovements(ctx context.Context, productID int64, limit int) ([]model.StockMovement, error)

	CreateCustomer(ctx context.Context, c model.Customer) (int64, error)
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	ListCustomers(ctx context.Context, search string) ([]model.Customer, error)
	UpdateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error
	ListLoyaltyLedger(ctx context.Context, customerID int64) ([]model.LoyaltyLedgerEntry, error)

	GetSettings(ctx context.Context) (*model.StoreSettings, error)
	UpdateSettings(ctx context.Context, s model.StoreSettings) error

	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	ListTransactions(ctx context.Context, f repository.TransactionFilter) ([]model.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id int64, status model.TransactionStatus) error
	UpdateTransactionPaymentMethod(ctx context.Context, id int64, method model.PaymentMethod) error
	UpdateTransactionCustomer(ctx context.Context, id int64, name, phone string) error
	UpdateTransactionCash(ctx context.Context, id int64, received, change *int64) error
	UpdateTransactionItem(ctx context.Context, transactionID int64, it model.TransactionItem) error
	DeleteTransaction(ctx context.Context, id int64) error
	SalesSummary(ctx context.Context, from, today time.Time) (*model.SalesSummary, error)
}

// Service содержит бизнес-логику кассового сервиса.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterCashier создаёт учётную запись кассира. Первый зарегистрированный
// сотрудник получает роль администратора.
func (s *Service) RegisterCashier(ctx context.Context, login, password, fullName string) (*model.Cashier, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, fmt.Errorf("%w: login and password are required", ErrInvalidInput)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	c := model.Cashier{
		Login:        login,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		Role:         model.CashierRoleCashier,
	}

	err = s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		// Регистрации идут по очереди, администратором становится только первый.
		if err := s.repo.LockCashierRegistration(ctx); err != nil {
			return err
		}

		n, err := s.repo.CountCashiers(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			c.Role = model.CashierRoleAdmin
		}

		c.ID, err = s.repo.CreateCashier(ctx, c)
		return err
	})
	if err != nil {
		return nil, err
	}

	if c.Role == model.CashierRoleAdmin {
		s.logger.Info("first cashier registered as admin", zap.String("login", c.Login))
	}
	return &c, nil
}

// AuthenticateCashier проверяет логин и пароль и возвращает кассира.
func (s *Service) AuthenticateCashier(ctx context.Context, login, password string) (*model.Cashier, error) {
	c, err := s.repo.GetCashierByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrCashierNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return c, nil
}

// passwordCost задаёт стоимость bcrypt. Тесты её понижают.
var passwordCost = bcrypt.DefaultCost

func hashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: password is too long", ErrInvalidInput)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// GetCashier возвращает кассира по идентификатору.
func (s *Service) GetCashier(ctx context.Context, id int64) (*model.Cashier, error) {
	return s.repo.GetCashier(ctx, id)
}

// ListCashiers возвращает список сотрудников. Доступно только администратору.
func (s *Service) ListCashiers(ctx context.Context, actorID int64) ([]model.Cashier, error) {
	if _, err := s.requireRole(ctx, actorID, model.CashierRoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListCashiers(ctx)
}

// ChangeCashierRole назначает сотруднику роль. Доступно только администратору.
// Свою роль администратор поменять не может, поэтому в системе всегда
// остаётся хотя бы один администратор.
func (s *Service) ChangeCashierRole(ctx context.Context, actorID, id int64, role model.CashierRole) (*model.Cashier, error) {
	if _, err := s.requireRole(ctx, actorID, model.CashierRoleAdmin); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if id == actorID {
		return nil, fmt.Errorf("%w: admin cannot change own role", ErrInvalidInput)
	}

	before, err := s.repo.GetCashier(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.Role == role {
		return before, nil
	}

	c, err := s.repo.UpdateCashierRole(ctx, id, role)
	if err != nil {
		return nil, err
	}

	s.logger.Info("cashier role changed",
		zap.Int64("cashier_id", id),
		zap.String("login", c.Login),
		zap.String("role_before", string(before.Role)),
		zap.String("role_after", string(c.Role)),
		zap.Int64("changed_by", actorID))
	return c, nil
}

// requireRole проверяет, что кассир actorID имеет одну из ролей.
func (s *Service) requireRole(ctx context.Context, actorID int64, roles ...model.CashierRole) (*model.Cashier, error) {
	c, err := s.repo.GetCashier(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrCashierNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	for _, r := range roles {
		if c.Role == r {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrForbidden, c.Role)
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(ctx context.Context, actorID int64, p model.Product) (*model.Product, error) {
	if _, err := s.requireRole(ctx, actorID, model.CashierRoleAdmin, model.CashierRoleManager); err != nil {
		return nil, err
	}

	p.Name = strings.TrimSpace(p.Name)
	p.Barcode = strings.TrimSpace(p.Barcode)
	if p.StockQuantity < 0 {
		return nil, fmt.Errorf("%w: stock levels must not be negative", ErrInvalidInput)
	}
	if err := validateProduct(p.Name, p.PricePaise, p.GSTRate, p.MinStockLevel); err != nil {
		return nil, err
	}

	id, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.repo.GetProduct(ctx, id)
}

func validateProduct(name string, price int64, gstRate float64, minStock int) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: product name is required", ErrInvalidInput)
	case price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	case minStock < 0:
		return fmt.Errorf("%w: stock levels must not be negative", ErrInvalidInput)
	case gstRate < 0 || gstRate > 100:
		return fmt.Errorf("%w: gst rate must be within 0..100", ErrInvalidInput)
	}
	return nil
}

// UpdateProduct изменяет карточку товара. Уже проданные строки чеков хранят
// свой снимок цены и не меняются.
func (s *Service) UpdateProduct(ctx context.Context, actorID, id int64, u model.ProductUpdate) (*model.Product, error) {
	if _, err := s.requireRole(ctx, actorID, model.CashierRoleAdmin, model.CashierRoleManager); err != nil {
		return nil, err
	}

	u.Name = strings.TrimSpace(u.Name)
	u.Barcode = strings.TrimSpace(u.Barcode)
	if err := validateProduct(u.Name, u.PricePaise, u.GSTRate, u.MinStockLevel); err != nil {
		return nil, err
	}

	p, err := s.repo.UpdateProduct(ctx, id, u)
	if err != nil {
		return nil, err
	}

	s.logger.Info("product updated",
		zap.Int64("product_id", id),
		zap.Int64("price_paise", p.PricePaise),
		zap.Int64("cashier_id", actorID))
	return p, nil
}

// DeleteProduct убирает товар из каталога.
func (s *Service) DeleteProduct(ctx context.Context, actorID, id int64) error {
	if _, err := s.requireRole(ctx, actorID, model.CashierRoleAdmin, model.CashierRoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.logger.Info("product deleted", zap.Int64("product_id", id), zap.Int64("cashier_id", actorID))
	return nil
}

// GetProduct возвращает товар каталога.
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts ищет товары по названию или штрихкоду.
func (s *Service) ListProducts(ctx context.Context, search string) ([]model.Product, error) {
	return s.repo.ListProducts(ctx, strings.TrimSpace(search))
}

// ListLowStockProducts возвращает товары с остатком не выше минимального.
func (s *Service) ListLowStockProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

// AdjustStock вручную изменяет остаток товара, например при приёмке или инвентаризации.
func (s *Service) AdjustStock(ctx context.Context, actorID, productID int64, delta int, note string) (*model.Product, error) {
	if _, err := s.requireRole(ctx, actorID, model.CashierRoleAdmin, model.CashierRoleManager); err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, fmt.Errorf("%w: stock adjustment must not be zero", ErrInvalidInput)
	}

	p, err := s.repo.AdjustStock(ctx, productID, delta, strings.TrimSpace(note), actorID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock adjusted",
		zap.Int64("product_id", productID),
		zap.Int("delta", delta),
		zap.Int("stock", p.StockQuantity),
		zap.Int64("cashier_id", actorID))
	if p.LowStock() {
		s.logger.Warn("product stock is low",
			zap.Int64("product_id", p.ID),
			zap.String("name", p.Name),
			zap.Int("stock", p.StockQuantity),
			zap.Int("min_stock_level", p.MinStockLevel))
	}
	return p, nil
}

// ListStockMovements возвращает журнал движения товара.
func (s *Service) ListStockMovements(ctx context.Context, productID int64, limit int) ([]model.StockMovement, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListStockMovements(ctx, productID, limit)
}

// CreateCustomer регистрирует покупателя в программе лояльности.
func (s *Service) CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error) {
	if err := s.normalizeCustomer(&c); err != nil {
		return nil, err
	}
	c.LoyaltyPoints = 0
	c.TotalSpentPaise = 0

	id, err := s.repo.CreateCustomer(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) normalizeCustomer(c *model.Customer) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = normalizePhone(c.Phone)
	c.Email = strings.TrimSpace(c.Email)
	c.Address = strings.TrimSpace(c.Address)
	if c.Name == "" || c.Phone == "" {
		return fmt.Errorf("%w: customer name and phone are required", ErrInvalidInput)
	}
	if c.DateOfBirth != nil && c.DateOfBirth.After(s.now()) {
		return fmt.Errorf("%w: date of birth is in the future", ErrInvalidInput)
	}
	return nil
}

// UpdateCustomer изменяет контактные данные покупателя. Баллы и сумма покупок не меняются.
func (s *Service) UpdateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error) {
	if err := s.normalizeCustomer(&c); err != nil {
		return nil, err
	}
	return s.repo.UpdateCustomer(ctx, c)
}

// DeleteCustomer удаляет покупателя без истории покупок.
func (s *Service) DeleteCustomer(ctx context.Context, actorID, id int64) error {
	if _, err := s.requireRole(ctx, actorID, model.CashierRoleAdmin, model.CashierRoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}

	s.logger.Info("customer deleted", zap.Int64("customer_id", id), zap.Int64("cashier_id", actorID))
	return nil
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ListCustomers ищет покупателей по имени или телефону.
func (s *Service) ListCustomers(ctx context.Context, search string) ([]model.Customer, error) {
	return s.repo.ListCustomers(ctx, strings.TrimSpace(search))
}

// CustomerDetails объединяет покупателя и журнал его баллов.
type CustomerDetails struct {
	Customer model.Customer
	Ledger   []model.LoyaltyLedgerEntry
}

// GetCustomer возвращает покупателя и историю начислений и списаний.
func (s *Service) GetCustomer(ctx context.Context, id int64) (*CustomerDetails, error) {
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	ledger, err := s.repo.ListLoyaltyLedger(ctx, id)
	if err != nil {
		return nil, err
	}

	return &CustomerDetails{Customer: *c, Ledger: ledger}, nil
}

// GetSettings возвращает реквизиты магазина.
func (s *Service) GetSettings(ctx context.Context) (*model.StoreSettings, error) {
	return s.repo.GetSettings(ctx)
}

// UpdateSettings сохраняет реквизиты магазина. Доступно только администратору.
func (s *Service) UpdateSettings(ctx context.Context, actorID int64, settings model.StoreSettings) (*model.StoreSettings, error) {
	if _, err := s.requireRole(ctx, actorID, model.CashierRoleAdmin); err != nil {
		return nil, err
	}
	if strings.TrimSpace(settings.StoreName) == "" {
		return nil, fmt.Errorf("%w: store name is required", ErrInvalidInput)
	}

	if err := s.repo.UpdateSettings(ctx, settings); err != nil {
		return nil, err
	}
	return s.repo.GetSettings(ctx)
}

// TransactionQuery задаёт параметры выборки истории чеков.
type TransactionQuery struct {
	From          time.Time
	To            time.Time
	Status        model.TransactionStatus
	InvoiceNumber string
	Limit         int
}

// ListTransactions возвращает историю чеков.
func (s *Service) ListTransactions(ctx context.Context, q TransactionQuery) ([]model.Transaction, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, q.Status)
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidInput)
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}

	return s.repo.ListTransactions(ctx, repository.TransactionFilter{
		From:          q.From,
		To:            q.To,
		Status:        q.Status,
		InvoiceNumber: strings.TrimSpace(q.InvoiceNumber),
		Limit:         q.Limit,
	})
}

// GetTransaction возвращает чек со строками.
func (s *Service) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// TransactionCorrection описывает административное исправление чека. Пустые поля не меняются.
type TransactionCorrection struct {
	Status            model.TransactionStatus
	PaymentMethod     model.PaymentMethod
	CustomerName      *string
	CustomerPhone     *string
	CashReceivedPaise *int64
	Items             []ItemCorrection
}

// ItemCorrection исправляет снимок строки чека. Сумма строки пересчитывается
// как количество, умноженное на цену.
type ItemCorrection struct {
	ID             int64
	ProductName    string
	Quantity       int
	UnitPricePaise int64
}

func (c TransactionCorrection) empty() bool {
	return c.Status == "" && c.PaymentMethod == "" && c.CustomerName == nil &&
		c.CustomerPhone == nil && c.CashReceivedPaise == nil && len(c.Items) == 0
}

func (c TransactionCorrection) validate() error {
	switch {
	case c.empty():
		return fmt.Errorf("%w: nothing to change", ErrInvalidInput)
	case c.Status != "" && c.Status != model.TransactionStatusCompleted && c.Status != model.TransactionStatusCancelled:
		return fmt.Errorf("%w: status must be completed or cancelled", ErrInvalidInput)
	case c.PaymentMethod != "" && !c.PaymentMethod.Valid():
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, c.PaymentMethod)
	case c.CashReceivedPaise != nil && *c.CashReceivedPaise < 0:
		return fmt.Errorf("%w: cash received must not be negative", ErrInvalidInput)
	}

	seen := make(map[int64]struct{}, len(c.Items))
	for _, it := range c.Items {
		if _, ok := seen[it.ID]; ok {
			return fmt.Errorf("%w: item %d corrected twice", ErrInvalidInput, it.ID)
		}
		seen[it.ID] = struct{}{}
		if it.Quantity < 1 || it.UnitPricePaise < 0 {
			return fmt.Errorf("%w: item %d must have positive quantity and non-negative price", ErrInvalidInput, it.ID)
		}
	}
	return nil
}

// CorrectTransaction исправляет чек. Доступно только администратору.
// Остатки товаров, баллы покупателя и итоги чека не пересчитываются.
// Для чеков, оплаченных не наличными, сумма наличных и сдача сбрасываются.
func (s *Service) CorrectTransaction(ctx context.Context, actorID, id int64, c TransactionCorrection) (*model.Transaction, error) {
	if _, err := s.requireRole(ctx, actorID, model.CashierRoleAdmin); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	var res *model.Transaction
	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		before, err := s.repo.GetTransaction(ctx, id)
		if err != nil {
			return err
		}

		method := before.PaymentMethod
		if c.PaymentMethod != "" {
			method = c.PaymentMethod
		}
		if c.CashReceivedPaise != nil {
			if method != model.PaymentMethodCash {
				return fmt.Errorf("%w: cash received is only recorded for cash payments", ErrInvalidInput)
			}
			if *c.CashReceivedPaise < before.TotalPaise {
				return fmt.Errorf("%w: cash received is less than the total", ErrInvalidInput)
			}
		}

		if c.Status != "" && c.Status != before.Status {
			if err := s.repo.UpdateTransactionStatus(ctx, id, c.Status); err != nil {
				return err
			}
		}
		if method != before.PaymentMethod {
			if err := s.repo.UpdateTransactionPaymentMethod(ctx, id, method); err != nil {
				return err
			}
		}

		if c.CustomerName != nil || c.CustomerPhone != nil {
			name, phone := before.CustomerName, before.CustomerPhone
			if c.CustomerName != nil {
				name = strings.TrimSpace(*c.CustomerName)
			}
			if c.CustomerPhone != nil {
				phone = normalizePhone(*c.CustomerPhone)
			}
			if err := s.repo.UpdateTransactionCustomer(ctx, id, name, phone); err != nil {
				return err
			}
		}

		switch {
		case c.CashReceivedPaise != nil:
			change := *c.CashReceivedPaise - before.TotalPaise
			if err := s.repo.UpdateTransactionCash(ctx, id, c.CashReceivedPaise, &change); err != nil {
				return err
			}
		case method != model.PaymentMethodCash && before.CashReceivedPaise != nil:
			if err := s.repo.UpdateTransactionCash(ctx, id, nil, nil); err != nil {
				return err
			}
		}

		if err := s.correctItems(ctx, before, c.Items); err != nil {
			return err
		}

		res, err = s.repo.GetTransaction(ctx, id)
		if err != nil {
			return err
		}

		s.logger.Info("transaction corrected",
			zap.Int64("transaction_id", id),
			zap.String("invoice", before.InvoiceNumber),
			zap.String("status_before", string(before.Status)),
			zap.String("status_after", string(res.Status)),
			zap.String("payment_before", string(before.PaymentMethod)),
			zap.String("payment_after", string(res.PaymentMethod)),
			zap.Int("items_corrected", len(c.Items)),
			zap.Int64("cashier_id", actorID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) correctItems(ctx context.Context, t *model.Transaction, items []ItemCorrection) error {
	if len(items) == 0 {
		return nil
	}

	current := make(map[int64]model.TransactionItem, len(t.Items))
	for _, it := range t.Items {
		current[it.ID] = it
	}

	for _, fix := range items {
		it, ok := current[fix.ID]
		if !ok {
			return fmt.Errorf("%w: item %d of transaction %d", repository.ErrTransactionItemNotFound, fix.ID, t.ID)
		}
		if name := strings.TrimSpace(fix.ProductName); name != "" {
			it.ProductName = name
		}
		it.Quantity = fix.Quantity
		it.UnitPricePaise = fix.UnitPricePaise
		it.TotalPaise = int64(fix.Quantity) * fix.UnitPricePaise

		if err := s.repo.UpdateTransactionItem(ctx, t.ID, it); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTransaction удаляет чек со строками. Доступно только администратору.
// Остатки товаров и баллы покупателя не возвращаются.
func (s *Service) DeleteTransaction(ctx context.Context, actorID, id int64) error {
	if _, err := s.requireRole(ctx, actorID, model.CashierRoleAdmin); err != nil {
		return err
	}

	return s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteTransaction(ctx, id); err != nil {
			return err
		}

		s.logger.Warn("transaction deleted",
			zap.Int64("transaction_id", id),
			zap.String("invoice", t.InvoiceNumber),
			zap.String("status", string(t.Status)),
			zap.Int64("total_paise", t.TotalPaise),
			zap.Int("items", len(t.Items)),
			zap.Int64("cashier_id", actorID))
		return nil
	})
}

// SalesSummary возвращает сводку продаж за последние days дней, включая сегодняшний.
func (s *Service) SalesSummary(ctx context.Context, days int) (*model.SalesSummary, error) {
	if days <= 0 {
		days = 30
	}
	if days > 366 {
		return nil, fmt.Errorf("%w: period must not exceed 366 days", ErrInvalidInput)
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	from := today.AddDate(0, 0, -(days - 1))

	return s.repo.SalesSummary(ctx, from, today)
}
