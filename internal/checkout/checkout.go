// Package checkout оформляет продажу: проверяет корзину, рассчитывает чек
// и в строгом порядке записывает его в хранилище.
//
// Порядок записи: номер счёта, заголовок чека, строки, списание остатков,
// баллы покупателя. Если хранилище поддерживает транзакции, все шаги
// выполняются в одной транзакции БД. Иначе заголовок сохраняется в статусе
// pending и переводится в completed после остальных шагов.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/minimart-pos/internal/billing"
	"github.com/mmeshcher/minimart-pos/internal/idempotency"
	"github.com/mmeshcher/minimart-pos/internal/metrics"
	"github.com/mmeshcher/minimart-pos/internal/model"
	"github.com/mmeshcher/minimart-pos/internal/repository"
	"github.com/mmeshcher/minimart-pos/internal/validation"
)

// Store описывает операции хранилища, которые нужны для оформления продажи.
type Store interface {
	FindTransactionByIdempotencyKey(ctx context.Context, key string) (*model.Transaction, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error)
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	GetCashier(ctx context.Context, id int64) (*model.Cashier, error)
	GetSettings(ctx context.Context) (*model.StoreSettings, error)

	LastInvoiceNumber(ctx context.Context, prefix string) (string, error)
	InsertTransaction(ctx context.Context, t model.Transaction) (int64, error)
	InsertTransactionItems(ctx context.Context, transactionID int64, items []model.TransactionItem) error
	DecrementStock(ctx context.Context, productID int64, qty int, reference string) error
	UpdateCustomerLoyalty(ctx context.Context, customerID int64, delta model.LoyaltyDelta) (*model.Customer, error)
	AppendLoyaltyLedger(ctx context.Context, e model.LoyaltyLedgerEntry) error
	UpdateTransactionStatus(ctx context.Context, id int64, status model.TransactionStatus) error
}

// Transactor выполняет fn в одной транзакции хранилища.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Guard не допускает параллельных продаж с одним ключом идемпотентности.
type Guard interface {
	Acquire(ctx context.Context, key string) (idempotency.ReleaseFunc, error)
}

// ReceiptSink принимает готовые чеки для печати.
type ReceiptSink interface {
	Enqueue(r model.Receipt) bool
}

// Config содержит параметры оформления продажи.
type Config struct {
	InvoicePrefix     string
	InvoiceRetryLimit int
	// StepTimeout ограничивает каждое обращение к хранилищу.
	StepTimeout time.Duration
	// FinishTimeout ограничивает шаги, выполняемые после сохранения заголовка
	// без транзакции. Эти шаги не прерываются отменой запроса.
	FinishTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.InvoicePrefix == "" {
		c.InvoicePrefix = "NM"
	}
	if c.InvoiceRetryLimit <= 0 {
		c.InvoiceRetryLimit = 5
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 5 * time.Second
	}
	if c.FinishTimeout <= 0 {
		c.FinishTimeout = 30 * time.Second
	}
	return c
}

// Deps содержит зависимости Sequencer. Guard, Printer и Metrics необязательны.
type Deps struct {
	Store   Store
	Engine  *billing.Engine
	Guard   Guard
	Printer ReceiptSink
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Item описывает позицию корзины в запросе.
type Item struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity"`
}

// Request описывает запрос на оформление продажи.
type Request struct {
	// IdempotencyKey назначается кассой один раз на продажу. Пустой ключ генерируется сервером.
	IdempotencyKey string              `json:"idempotency_key" validate:"omitempty,max=128"`
	CashierID      int64               `json:"-" validate:"required,gt=0"`
	CustomerID     *int64              `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Items          []Item              `json:"items" validate:"dive"`
	RedeemPoints   int64               `json:"redeem_points"`
	PaymentMethod  model.PaymentMethod `json:"payment_method"`
	CashReceived   *decimal.Decimal    `json:"cash_received,omitempty"`
}

// Quote содержит расчёт чека без записи в хранилище.
type Quote struct {
	Result   billing.Result
	Items    []model.TransactionItem
	Customer *model.Customer
}

// Sequencer оформляет продажи.
type Sequencer struct {
	store    Store
	tx       Transactor
	engine   *billing.Engine
	guard    Guard
	printer  ReceiptSink
	validate *validation.Validator
	logger   *zap.Logger
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time
}

// NewSequencer создаёт Sequencer. Если Store реализует Transactor,
// продажа записывается в одной транзакции.
func NewSequencer(d Deps, cfg Config) *Sequencer {
	s := &Sequencer{
		store:    d.Store,
		engine:   d.Engine,
		guard:    d.Guard,
		printer:  d.Printer,
		validate: validation.NewValidator(),
		logger:   d.Logger,
		metrics:  d.Metrics,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
	if tx, ok := d.Store.(Transactor); ok {
		s.tx = tx
	}
	if s.engine == nil {
		s.engine = billing.NewEngine(billing.DefaultPolicy())
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// sale хранит продажу, подготовленную к записи.
type sale struct {
	header   model.Transaction
	items    []model.TransactionItem
	result   billing.Result
	customer *model.Customer
	cashier  *model.Cashier
	store    model.StoreSettings
}

// Checkout оформляет продажу и возвращает чек.
func (s *Sequencer) Checkout(ctx context.Context, req Request) (*model.Receipt, error) {
	start := s.now()
	receipt, err := s.checkout(ctx, req)
	s.observe(start, err)
	return receipt, err
}

func (s *Sequencer) checkout(ctx context.Context, req Request) (*model.Receipt, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	if s.guard != nil {
		release, err := s.guard.Acquire(ctx, req.IdempotencyKey)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			return nil, ErrCheckoutInProgress
		case err != nil:
			// Уникальный ключ в БД всё равно не даст сохранить продажу дважды.
			s.logger.Warn("idempotency guard unavailable", zap.Error(err))
		default:
			defer func() {
				if err := release(); err != nil {
					s.logger.Warn("failed to release idempotency key",
						zap.String("idempotency_key", req.IdempotencyKey),
						zap.Error(err))
				}
			}()
		}
	}

	if err := s.ensureNotCompleted(ctx, req.IdempotencyKey); err != nil {
		return nil, err
	}

	sl, err := s.prepare(ctx, req, true)
	if err != nil {
		return nil, err
	}

	if s.tx != nil {
		err = s.persistInTx(ctx, sl)
	} else {
		err = s.persistSaga(ctx, sl)
	}
	if err != nil {
		return nil, err
	}

	receipt := &model.Receipt{
		Transaction:    sl.header,
		Customer:       sl.customer,
		Cashier:        sl.cashier,
		Store:          sl.store,
		PointsEarned:   sl.header.LoyaltyEarned,
		PointsRedeemed: sl.header.LoyaltyRedeemed,
	}
	receipt.Transaction.Items = sl.items

	s.logger.Info("checkout completed",
		zap.String("invoice", sl.header.InvoiceNumber),
		zap.Int64("transaction_id", sl.header.ID),
		zap.Int64("total_paise", sl.header.TotalPaise),
		zap.String("payment_method", string(sl.header.PaymentMethod)),
		zap.Int("items", len(sl.items)))

	if s.printer != nil {
		s.printer.Enqueue(*receipt)
	}

	return receipt, nil
}

// Quote рассчитывает чек по текущему каталогу без записи в хранилище.
func (s *Sequencer) Quote(ctx context.Context, req Request) (*Quote, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	sl, err := s.prepare(ctx, req, false)
	if err != nil {
		if reason, ok := billing.ReasonOf(err); ok {
			s.metrics.ObserveRejection(string(reason))
		}
		return nil, err
	}

	return &Quote{Result: sl.result, Items: sl.items, Customer: sl.customer}, nil
}

func (s *Sequencer) ensureNotCompleted(ctx context.Context, key string) error {
	var existing *model.Transaction
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		existing, err = s.store.FindTransactionByIdempotencyKey(ctx, key)
		return err
	})
	switch {
	case errors.Is(err, repository.ErrTransactionNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("check idempotency key: %w", err)
	}
	return fmt.Errorf("%w: invoice %s", ErrAlreadyCompleted, existing.InvoiceNumber)
}

// prepare выполняет все проверки до первой записи: товары, остатки, покупатель, расчёт чека.
func (s *Sequencer) prepare(ctx context.Context, req Request, forSale bool) (*sale, error) {
	products, err := s.loadProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	lines := make([]billing.Line, 0, len(req.Items))
	items := make([]model.TransactionItem, 0, len(req.Items))
	for _, it := range req.Items {
		p := products[it.ProductID]
		lines = append(lines, billing.Line{
			ProductID: p.ID,
			UnitPrice: billing.FromPaise(p.PricePaise),
			Quantity:  it.Quantity,
			Tax:       billing.NewTaxMode(decimal.NewFromFloat(p.GSTRate), p.PriceInclGST),
		})
		items = append(items, model.TransactionItem{
			ProductID:      p.ID,
			ProductName:    p.Name,
			Quantity:       it.Quantity,
			UnitPricePaise: p.PricePaise,
			GSTRate:        p.GSTRate,
			PriceInclGST:   p.PriceInclGST,
		})
	}

	if err := checkStock(req.Items, products); err != nil {
		return nil, err
	}

	var customer *model.Customer
	if req.CustomerID != nil {
		err := s.call(ctx, func(ctx context.Context) error {
			var err error
			customer, err = s.store.GetCustomer(ctx, *req.CustomerID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("load customer: %w", err)
		}
	}

	breq := billing.Request{
		Lines:         lines,
		RedeemPoints:  req.RedeemPoints,
		PaymentMethod: req.PaymentMethod,
		CashReceived:  req.CashReceived,
	}
	if customer != nil {
		breq.HasCustomer = true
		breq.LoyaltyBalance = customer.LoyaltyPoints
	}

	res, err := s.engine.Calculate(breq)
	if err != nil {
		return nil, err
	}

	for i := range items {
		items[i].TotalPaise = billing.ToPaise(res.Lines[i].Total)
	}

	sl := &sale{result: res, items: items, customer: customer}
	if !forSale {
		return sl, nil
	}

	if err := s.call(ctx, func(ctx context.Context) error {
		var err error
		sl.cashier, err = s.store.GetCashier(ctx, req.CashierID)
		return err
	}); err != nil {
		return nil, fmt.Errorf("load cashier: %w", err)
	}

	if err := s.call(ctx, func(ctx context.Context) error {
		settings, err := s.store.GetSettings(ctx)
		if err == nil {
			sl.store = *settings
		}
		return err
	}); err != nil {
		return nil, fmt.Errorf("load store settings: %w", err)
	}

	sl.header = s.newHeader(req, res, customer)
	return sl, nil
}

func (s *Sequencer) loadProducts(ctx context.Context, items []Item) (map[int64]model.Product, error) {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	if len(ids) == 0 {
		return map[int64]model.Product{}, nil
	}

	var products map[int64]model.Product
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		products, err = s.store.GetProductsByIDs(ctx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, fmt.Errorf("%w: %d", repository.ErrProductNotFound, id)
		}
	}
	return products, nil
}

// checkStock сравнивает суммарное количество каждого товара с текущим остатком.
func checkStock(items []Item, products map[int64]model.Product) error {
	want := make(map[int64]int, len(items))
	for _, it := range items {
		want[it.ProductID] += it.Quantity
	}
	for _, it := range items {
		p := products[it.ProductID]
		if qty, ok := want[p.ID]; ok && qty > p.StockQuantity {
			return fmt.Errorf("%w: %s has %d in stock, requested %d",
				repository.ErrInsufficientStock, p.Name, p.StockQuantity, qty)
		}
		delete(want, p.ID)
	}
	return nil
}

func (s *Sequencer) newHeader(req Request, res billing.Result, customer *model.Customer) model.Transaction {
	now := s.now()
	h := model.Transaction{
		InvoicePrefix:        s.cfg.InvoicePrefix,
		IdempotencyKey:       req.IdempotencyKey,
		CashierID:            req.CashierID,
		SubtotalPaise:        billing.ToPaise(res.Subtotal),
		GSTPaise:             billing.ToPaise(res.TaxAmount),
		TotalPaise:           billing.ToPaise(res.RoundedTotal),
		RoundingPaise:        billing.ToPaise(res.RoundingAdjustment),
		LoyaltyRedeemed:      res.PointsRedeemed,
		LoyaltyDiscountPaise: billing.ToPaise(res.LoyaltyDiscount),
		LoyaltyEarned:        res.PointsEarned,
		PaymentMethod:        req.PaymentMethod,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if customer != nil {
		id := customer.ID
		h.CustomerID = &id
		h.CustomerName = customer.Name
		h.CustomerPhone = customer.Phone
	}
	if res.CashReceived != nil {
		cash := billing.ToPaise(*res.CashReceived)
		change := billing.ToPaise(res.ChangeDue)
		h.CashReceivedPaise = &cash
		h.ChangePaise = &change
	}
	return h
}

// call выполняет одно обращение к хранилищу с ограничением по времени.
func (s *Sequencer) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Sequencer) observe(start time.Time, err error) {
	elapsed := s.now().Sub(start)

	var (
		rejection    *billing.RejectionError
		inconsistent *InconsistentTransactionError
		requestErr   *validation.RequestError
	)
	switch {
	case err == nil:
		s.metrics.ObserveCheckout(metrics.ResultCompleted, elapsed)
	case errors.As(err, &rejection):
		s.metrics.ObserveRejection(string(rejection.Reason))
		s.metrics.ObserveCheckout(metrics.ResultRejected, elapsed)
	case errors.As(err, &requestErr),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrCustomerNotFound):
		s.metrics.ObserveCheckout(metrics.ResultRejected, elapsed)
	case errors.As(err, &inconsistent):
		s.logger.Error("checkout left transaction pending",
			zap.Int64("transaction_id", inconsistent.TransactionID),
			zap.String("invoice", inconsistent.InvoiceNumber),
			zap.String("step", inconsistent.Step),
			zap.Error(inconsistent.Err))
		s.metrics.ObserveCheckout(metrics.ResultInconsistent, elapsed)
	case isConflict(err):
		s.logger.Info("checkout conflict", zap.Error(err))
		s.metrics.ObserveCheckout(metrics.ResultConflict, elapsed)
	default:
		s.logger.Error("checkout failed", zap.Error(err))
		s.metrics.ObserveCheckout(metrics.ResultFailed, elapsed)
	}
}

func isConflict(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted) ||
		errors.Is(err, ErrCheckoutInProgress) ||
		errors.Is(err, ErrInvoiceAllocationExhausted) ||
		errors.Is(err, repository.ErrInsufficientStock) ||
		errors.Is(err, repository.ErrInsufficientPoints)
}
