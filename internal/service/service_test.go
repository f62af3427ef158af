package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/minimart-pos/internal/model"
	"github.com/mmeshcher/minimart-pos/internal/repository"
)

func init() {
	passwordCost = bcrypt.MinCost
}

func mustHash(t *testing.T, password string) []byte {
	t.Helper()
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword error: %v", err)
	}
	return hash
}

func TestHashPassword(t *testing.T) {
	a := mustHash(t, "pass")
	b := mustHash(t, "pass")

	if string(a) == string(b) {
		t.Fatalf("hashes of the same password must be salted")
	}
	if bcrypt.CompareHashAndPassword(a, []byte("pass")) != nil {
		t.Fatalf("hash does not match its password")
	}
	if bcrypt.CompareHashAndPassword(a, []byte("other")) == nil {
		t.Fatalf("hash matches a different password")
	}

	if _, err := hashPassword(strings.Repeat("x", 80)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a long password, got %v", err)
	}
}

type stubRepo struct {
	cashiers     map[int64]model.Cashier
	createdID    int64
	createErr    error
	created      []model.Cashier
	transactions int
	// порядок вызовов внутри регистрации
	registration []string
	roleUpdates  []model.CashierRole

	product        *model.Product
	productErr     error
	createdProduct model.Product
	adjustDelta    int
	adjustNote     string
	adjusted       *model.Product
	productUpdate  model.ProductUpdate
	deletedProduct int64

	customer       *model.Customer
	createdCust    model.Customer
	updatedCust    model.Customer
	deleteCustErr  error
	deletedCust    int64
	ledger         []model.LoyaltyLedgerEntry
	movementsLimit int

	settings        *model.StoreSettings
	updatedSettings *model.StoreSettings

	transaction   *model.Transaction
	statusCalls   []model.TransactionStatus
	paymentCalls  []model.PaymentMethod
	customerCalls [][2]string
	cashCalls     [][2]*int64
	itemCalls     []model.TransactionItem
	deletedTx     int64
	filter        repository.TransactionFilter
	summaryFrom   time.Time
	summaryToday  time.Time
	summaryResult *model.SalesSummary
}

var correctHash, _ = bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)

func newStubRepo() *stubRepo {
	return &stubRepo{
		cashiers: map[int64]model.Cashier{
			1: {ID: 1, Login: "owner", Role: model.CashierRoleAdmin},
			2: {ID: 2, Login: "floor", Role: model.CashierRoleManager},
			3: {ID: 3, Login: "till1", Role: model.CashierRoleCashier, PasswordHash: correctHash},
		},
	}
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.transactions++
	return fn(ctx)
}

func (s *stubRepo) CreateCashier(ctx context.Context, c model.Cashier) (int64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	s.created = append(s.created, c)
	return s.createdID, nil
}

func (s *stubRepo) GetCashierByLogin(ctx context.Context, login string) (*model.Cashier, error) {
	for _, c := range s.cashiers {
		if c.Login == login {
			return &c, nil
		}
	}
	return nil, repository.ErrCashierNotFound
}

func (s *stubRepo) GetCashier(ctx context.Context, id int64) (*model.Cashier, error) {
	c, ok := s.cashiers[id]
	if !ok {
		return nil, repository.ErrCashierNotFound
	}
	return &c, nil
}

func (s *stubRepo) CountCashiers(ctx context.Context) (int64, error) {
	s.registration = append(s.registration, "count")
	return int64(len(s.cashiers)), nil
}

func (s *stubRepo) LockCashierRegistration(ctx context.Context) error {
	s.registration = append(s.registration, "lock")
	return nil
}

func (s *stubRepo) ListCashiers(ctx context.Context) ([]model.Cashier, error) {
	res := make([]model.Cashier, 0, len(s.cashiers))
	for id := int64(1); id <= int64(len(s.cashiers)); id++ {
		res = append(res, s.cashiers[id])
	}
	return res, nil
}

func (s *stubRepo) UpdateCashierRole(ctx context.Context, id int64, role model.CashierRole) (*model.Cashier, error) {
	c, ok := s.cashiers[id]
	if !ok {
		return nil, repository.ErrCashierNotFound
	}
	s.roleUpdates = append(s.roleUpdates, role)
	c.Role = role
	s.cashiers[id] = c
	return &c, nil
}

func (s *stubRepo) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	s.createdProduct = p
	return 10, nil
}

func (s *stubRepo) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	if s.productErr != nil {
		return nil, s.productErr
	}
	if s.product != nil {
		return s.product, nil
	}
	p := s.createdProduct
	p.ID = id
	return &p, nil
}

func (s *stubRepo) ListProducts(ctx context.Context, search string) ([]model.Product, error) {
	return nil, nil
}

func (s *stubRepo) ListLowStockProducts(ctx context.Context) ([]model.Product, error) {
	return nil, nil
}

func (s *stubRepo) UpdateProduct(ctx context.Context, id int64, u model.ProductUpdate) (*model.Product, error) {
	if s.productErr != nil {
		return nil, s.productErr
	}
	s.productUpdate = u
	return &model.Product{ID: id, Name: u.Name, Barcode: u.Barcode, PricePaise: u.PricePaise, GSTRate: u.GSTRate}, nil
}

func (s *stubRepo) DeleteProduct(ctx context.Context, id int64) error {
	if s.productErr != nil {
		return s.productErr
	}
	s.deletedProduct = id
	return nil
}

func (s *stubRepo) AdjustStock(ctx context.Context, productID int64, delta int, note string, cashierID int64) (*model.Product, error) {
	s.adjustDelta = delta
	s.adjustNote = note
	return s.adjusted, nil
}

func (s *stubRepo) ListStockMovements(ctx context.Context, productID int64, limit int) ([]model.StockMovement, error) {
	s.movementsLimit = limit
	return nil, nil
}

func (s *stubRepo) CreateCustomer(ctx context.Context, c model.Customer) (int64, error) {
	s.createdCust = c
	return 7, nil
}

func (s *stubRepo) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	if s.customer != nil {
		return s.customer, nil
	}
	c := s.createdCust
	c.ID = id
	return &c, nil
}

func (s *stubRepo) ListCustomers(ctx context.Context, search string) ([]model.Customer, error) {
	return nil, nil
}

func (s *stubRepo) UpdateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error) {
	s.updatedCust = c
	return &c, nil
}

func (s *stubRepo) DeleteCustomer(ctx context.Context, id int64) error {
	if s.deleteCustErr != nil {
		return s.deleteCustErr
	}
	s.deletedCust = id
	return nil
}

func (s *stubRepo) ListLoyaltyLedger(ctx context.Context, customerID int64) ([]model.LoyaltyLedgerEntry, error) {
	return s.ledger, nil
}

func (s *stubRepo) GetSettings(ctx context.Context) (*model.StoreSettings, error) {
	if s.updatedSettings != nil {
		return s.updatedSettings, nil
	}
	return s.settings, nil
}

func (s *stubRepo) UpdateSettings(ctx context.Context, settings model.StoreSettings) error {
	s.updatedSettings = &settings
	return nil
}

func (s *stubRepo) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	if s.transaction == nil {
		return nil, repository.ErrTransactionNotFound
	}
	t := *s.transaction
	return &t, nil
}

func (s *stubRepo) ListTransactions(ctx context.Context, f repository.TransactionFilter) ([]model.Transaction, error) {
	s.filter = f
	return nil, nil
}

func (s *stubRepo) UpdateTransactionStatus(ctx context.Context, id int64, status model.TransactionStatus) error {
	s.statusCalls = append(s.statusCalls, status)
	s.transaction.Status = status
	return nil
}

func (s *stubRepo) UpdateTransactionPaymentMethod(ctx context.Context, id int64, method model.PaymentMethod) error {
	s.paymentCalls = append(s.paymentCalls, method)
	s.transaction.PaymentMethod = method
	return nil
}

func (s *stubRepo) UpdateTransactionCustomer(ctx context.Context, id int64, name, phone string) error {
	s.customerCalls = append(s.customerCalls, [2]string{name, phone})
	s.transaction.CustomerName = name
	s.transaction.CustomerPhone = phone
	return nil
}

func (s *stubRepo) UpdateTransactionCash(ctx context.Context, id int64, received, change *int64) error {
	s.cashCalls = append(s.cashCalls, [2]*int64{received, change})
	s.transaction.CashReceivedPaise = received
	s.transaction.ChangePaise = change
	return nil
}

func (s *stubRepo) UpdateTransactionItem(ctx context.Context, transactionID int64, it model.TransactionItem) error {
	s.itemCalls = append(s.itemCalls, it)
	for i := range s.transaction.Items {
		if s.transaction.Items[i].ID == it.ID {
			s.transaction.Items[i] = it
		}
	}
	return nil
}

func (s *stubRepo) DeleteTransaction(ctx context.Context, id int64) error {
	s.deletedTx = id
	return nil
}

func (s *stubRepo) SalesSummary(ctx context.Context, from, today time.Time) (*model.SalesSummary, error) {
	s.summaryFrom = from
	s.summaryToday = today
	return s.summaryResult, nil
}

func TestRegisterCashier_FirstBecomesAdmin(t *testing.T) {
	repo := &stubRepo{cashiers: map[int64]model.Cashier{}, createdID: 1}
	svc := NewService(repo, nil)

	c, err := svc.RegisterCashier(context.Background(), " owner ", "secret", "Store Owner")
	if err != nil {
		t.Fatalf("RegisterCashier error: %v", err)
	}
	if c.Role != model.CashierRoleAdmin {
		t.Fatalf("role = %q, want admin", c.Role)
	}
	if c.ID != 1 || c.Login != "owner" {
		t.Fatalf("unexpected cashier: %+v", c)
	}
	if repo.transactions != 1 {
		t.Fatalf("registration must run in one transaction, got %d", repo.transactions)
	}
	if strings.Join(repo.registration, ",") != "lock,count" {
		t.Fatalf("registration must lock before counting cashiers, got %v", repo.registration)
	}
}

func TestRegisterCashier_NextIsCashier(t *testing.T) {
	repo := newStubRepo()
	repo.createdID = 4
	svc := NewService(repo, nil)

	c, err := svc.RegisterCashier(context.Background(), "till2", "secret", "")
	if err != nil {
		t.Fatalf("RegisterCashier error: %v", err)
	}
	if c.Role != model.CashierRoleCashier {
		t.Fatalf("role = %q, want cashier", c.Role)
	}
	if bcrypt.CompareHashAndPassword(repo.created[0].PasswordHash, []byte("secret")) != nil {
		t.Fatalf("password must be stored hashed")
	}
}

func TestRegisterCashier_PropagatesDuplicateError(t *testing.T) {
	repo := newStubRepo()
	repo.createErr = repository.ErrCashierExists
	svc := NewService(repo, nil)

	_, err := svc.RegisterCashier(context.Background(), "till1", "pass", "")
	if !errors.Is(err, repository.ErrCashierExists) {
		t.Fatalf("expected ErrCashierExists, got %v", err)
	}
}

func TestRegisterCashier_RequiresCredentials(t *testing.T) {
	svc := NewService(newStubRepo(), nil)

	_, err := svc.RegisterCashier(context.Background(), "  ", "pass", "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAuthenticateCashier(t *testing.T) {
	svc := NewService(newStubRepo(), nil)

	c, err := svc.AuthenticateCashier(context.Background(), "till1", "correct")
	if err != nil {
		t.Fatalf("AuthenticateCashier error: %v", err)
	}
	if c.ID != 3 {
		t.Fatalf("cashier id = %d, want 3", c.ID)
	}

	if _, err := svc.AuthenticateCashier(context.Background(), "till1", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.AuthenticateCashier(context.Background(), "nobody", "correct"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown login, got %v", err)
	}
}

func TestCreateProduct(t *testing.T) {
	tests := []struct {
		name    string
		actor   int64
		product model.Product
		wantErr error
	}{
		{
			name:    "manager adds product",
			actor:   2,
			product: model.Product{Name: " Toor Dal 1kg ", PricePaise: 15000, GSTRate: 5, StockQuantity: 20},
		},
		{
			name:    "cashier is not allowed",
			actor:   3,
			product: model.Product{Name: "Toor Dal 1kg", PricePaise: 15000},
			wantErr: ErrForbidden,
		},
		{
			name:    "zero price",
			actor:   1,
			product: model.Product{Name: "Toor Dal 1kg"},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "gst above 100",
			actor:   1,
			product: model.Product{Name: "Toor Dal 1kg", PricePaise: 15000, GSTRate: 118},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "negative stock",
			actor:   1,
			product: model.Product{Name: "Toor Dal 1kg", PricePaise: 15000, StockQuantity: -1},
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newStubRepo(), nil)

			p, err := svc.CreateProduct(context.Background(), tt.actor, tt.product)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateProduct error: %v", err)
			}
			if p.ID != 10 || p.Name != "Toor Dal 1kg" {
				t.Fatalf("unexpected product: %+v", p)
			}
		})
	}
}

func TestAdjustStock(t *testing.T) {
	repo := newStubRepo()
	repo.adjusted = &model.Product{ID: 5, Name: "Sugar 1kg", StockQuantity: 3, MinStockLevel: 5}
	svc := NewService(repo, nil)

	p, err := svc.AdjustStock(context.Background(), 2, 5, -2, " damaged ")
	if err != nil {
		t.Fatalf("AdjustStock error: %v", err)
	}
	if p.StockQuantity != 3 || repo.adjustDelta != -2 || repo.adjustNote != "damaged" {
		t.Fatalf("unexpected adjustment: product %+v, delta %d, note %q", p, repo.adjustDelta, repo.adjustNote)
	}

	if _, err := svc.AdjustStock(context.Background(), 2, 5, 0, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero delta, got %v", err)
	}
	if _, err := svc.AdjustStock(context.Background(), 3, 5, 10, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier, got %v", err)
	}
	if _, err := svc.AdjustStock(context.Background(), 99, 5, 10, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unknown actor, got %v", err)
	}
}

func TestListStockMovements(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	if _, err := svc.ListStockMovements(context.Background(), 5, 0); err != nil {
		t.Fatalf("ListStockMovements error: %v", err)
	}
	if repo.movementsLimit != 100 {
		t.Fatalf("limit = %d, want default 100", repo.movementsLimit)
	}

	repo.productErr = repository.ErrProductNotFound
	if _, err := svc.ListStockMovements(context.Background(), 5, 10); !errors.Is(err, repository.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCreateCustomer_NormalizesPhone(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	c, err := svc.CreateCustomer(context.Background(), model.Customer{Name: "Asha", Phone: "+91 98000-00007", LoyaltyPoints: 500})
	if err != nil {
		t.Fatalf("CreateCustomer error: %v", err)
	}
	if c.Phone != "+919800000007" {
		t.Fatalf("phone = %q, want +919800000007", c.Phone)
	}
	if repo.createdCust.LoyaltyPoints != 0 {
		t.Fatalf("new customer must start with zero points, got %d", repo.createdCust.LoyaltyPoints)
	}

	if _, err := svc.CreateCustomer(context.Background(), model.Customer{Name: "Asha"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without phone, got %v", err)
	}
}

func TestGetCustomer_IncludesLedger(t *testing.T) {
	repo := newStubRepo()
	repo.customer = &model.Customer{ID: 7, Name: "Asha", LoyaltyPoints: 55}
	txID := int64(101)
	repo.ledger = []model.LoyaltyLedgerEntry{{CustomerID: 7, TransactionID: &txID, Earned: 5, Redeemed: 200}}
	svc := NewService(repo, nil)

	d, err := svc.GetCustomer(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetCustomer error: %v", err)
	}
	if d.Customer.LoyaltyPoints != 55 || len(d.Ledger) != 1 {
		t.Fatalf("unexpected details: %+v", d)
	}
}

func TestUpdateSettings_AdminOnly(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	settings := model.StoreSettings{StoreName: "NATIONAL MINI MART", ReceiptFooter: "Visit again"}

	if _, err := svc.UpdateSettings(context.Background(), 2, settings); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for manager, got %v", err)
	}
	if repo.updatedSettings != nil {
		t.Fatalf("settings must not be written by manager")
	}

	res, err := svc.UpdateSettings(context.Background(), 1, settings)
	if err != nil {
		t.Fatalf("UpdateSettings error: %v", err)
	}
	if res.ReceiptFooter != "Visit again" {
		t.Fatalf("unexpected settings: %+v", res)
	}

	if _, err := svc.UpdateSettings(context.Background(), 1, model.StoreSettings{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty store name, got %v", err)
	}
}

func TestListTransactions(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	if _, err := svc.ListTransactions(context.Background(), TransactionQuery{From: from, To: to, Status: model.TransactionStatusPending}); err != nil {
		t.Fatalf("ListTransactions error: %v", err)
	}
	if repo.filter.Limit != 100 || repo.filter.Status != model.TransactionStatusPending || !repo.filter.From.Equal(from) {
		t.Fatalf("unexpected filter: %+v", repo.filter)
	}

	if _, err := svc.ListTransactions(context.Background(), TransactionQuery{Status: "refunded"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown status, got %v", err)
	}
	if _, err := svc.ListTransactions(context.Background(), TransactionQuery{From: to, To: from}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for reversed range, got %v", err)
	}
}

func TestCorrectTransaction(t *testing.T) {
	tests := []struct {
		name        string
		actor       int64
		correction  TransactionCorrection
		wantErr     error
		wantStatus  []model.TransactionStatus
		wantPayment []model.PaymentMethod
	}{
		{
			name:       "admin completes pending transaction",
			actor:      1,
			correction: TransactionCorrection{Status: model.TransactionStatusCompleted},
			wantStatus: []model.TransactionStatus{model.TransactionStatusCompleted},
		},
		{
			name:        "admin fixes payment method",
			actor:       1,
			correction:  TransactionCorrection{PaymentMethod: model.PaymentMethodUPI},
			wantPayment: []model.PaymentMethod{model.PaymentMethodUPI},
		},
		{
			name:       "unchanged payment is not written",
			actor:      1,
			correction: TransactionCorrection{Status: model.TransactionStatusCancelled, PaymentMethod: model.PaymentMethodCash},
			wantStatus: []model.TransactionStatus{model.TransactionStatusCancelled},
		},
		{
			name:       "manager is not allowed",
			actor:      2,
			correction: TransactionCorrection{Status: model.TransactionStatusCancelled},
			wantErr:    ErrForbidden,
		},
		{
			name:       "back to pending is not allowed",
			actor:      1,
			correction: TransactionCorrection{Status: model.TransactionStatusPending},
			wantErr:    ErrInvalidInput,
		},
		{
			name:       "unknown payment method",
			actor:      1,
			correction: TransactionCorrection{PaymentMethod: "cheque"},
			wantErr:    ErrInvalidInput,
		},
		{
			name:    "empty correction",
			actor:   1,
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			repo.transaction = &model.Transaction{
				ID:            101,
				InvoiceNumber: "NM 0043",
				Status:        model.TransactionStatusPending,
				PaymentMethod: model.PaymentMethodCash,
			}
			svc := NewService(repo, nil)

			res, err := svc.CorrectTransaction(context.Background(), tt.actor, 101, tt.correction)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if len(repo.statusCalls)+len(repo.paymentCalls) != 0 {
					t.Fatalf("rejected correction must not write")
				}
				return
			}
			if err != nil {
				t.Fatalf("CorrectTransaction error: %v", err)
			}
			if len(repo.statusCalls) != len(tt.wantStatus) || len(repo.paymentCalls) != len(tt.wantPayment) {
				t.Fatalf("writes: status %v, payment %v", repo.statusCalls, repo.paymentCalls)
			}
			if res.InvoiceNumber != "NM 0043" {
				t.Fatalf("unexpected transaction: %+v", res)
			}
		})
	}
}

func TestCorrectTransaction_NotFound(t *testing.T) {
	svc := NewService(newStubRepo(), nil)

	_, err := svc.CorrectTransaction(context.Background(), 1, 404, TransactionCorrection{Status: model.TransactionStatusCancelled})
	if !errors.Is(err, repository.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestSalesSummary_Period(t *testing.T) {
	repo := newStubRepo()
	repo.summaryResult = &model.SalesSummary{PeriodPaise: 100}
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC) }

	if _, err := svc.SalesSummary(context.Background(), 7); err != nil {
		t.Fatalf("SalesSummary error: %v", err)
	}

	wantToday := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	wantFrom := time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC)
	if !repo.summaryToday.Equal(wantToday) || !repo.summaryFrom.Equal(wantFrom) {
		t.Fatalf("range = %v..%v, want %v..%v", repo.summaryFrom, repo.summaryToday, wantFrom, wantToday)
	}

	if _, err := svc.SalesSummary(context.Background(), 0); err != nil {
		t.Fatalf("SalesSummary error: %v", err)
	}
	if !repo.summaryFrom.Equal(wantToday.AddDate(0, 0, -29)) {
		t.Fatalf("default period must be 30 days, from = %v", repo.summaryFrom)
	}

	if _, err := svc.SalesSummary(context.Background(), 400); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for too long period, got %v", err)
	}
}

func TestListCashiers_AdminOnly(t *testing.T) {
	svc := NewService(newStubRepo(), nil)

	list, err := svc.ListCashiers(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListCashiers error: %v", err)
	}
	if len(list) != 3 || list[0].Login != "owner" {
		t.Fatalf("unexpected cashiers: %+v", list)
	}

	if _, err := svc.ListCashiers(context.Background(), 2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for manager, got %v", err)
	}
}

func TestChangeCashierRole(t *testing.T) {
	tests := []struct {
		name    string
		actor   int64
		target  int64
		role    model.CashierRole
		wantErr error
		writes  int
	}{
		{name: "admin promotes cashier to manager", actor: 1, target: 3, role: model.CashierRoleManager, writes: 1},
		{name: "same role is not written", actor: 1, target: 2, role: model.CashierRoleManager},
		{name: "manager is not allowed", actor: 2, target: 3, role: model.CashierRoleManager, wantErr: ErrForbidden},
		{name: "admin cannot demote self", actor: 1, target: 1, role: model.CashierRoleCashier, wantErr: ErrInvalidInput},
		{name: "unknown role", actor: 1, target: 3, role: "owner", wantErr: ErrInvalidInput},
		{name: "unknown cashier", actor: 1, target: 42, role: model.CashierRoleManager, wantErr: repository.ErrCashierNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			svc := NewService(repo, nil)

			c, err := svc.ChangeCashierRole(context.Background(), tt.actor, tt.target, tt.role)
			if len(repo.roleUpdates) != tt.writes {
				t.Fatalf("role writes = %v, want %d", repo.roleUpdates, tt.writes)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ChangeCashierRole error: %v", err)
			}
			if c.Role != tt.role {
				t.Fatalf("role = %q, want %q", c.Role, tt.role)
			}
		})
	}
}

func TestPromotedManagerCanEditCatalog(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	if _, err := svc.CreateProduct(context.Background(), 3, model.Product{Name: "Jaggery 1kg", PricePaise: 9000}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden before promotion, got %v", err)
	}
	if _, err := svc.ChangeCashierRole(context.Background(), 1, 3, model.CashierRoleManager); err != nil {
		t.Fatalf("ChangeCashierRole error: %v", err)
	}
	if _, err := svc.CreateProduct(context.Background(), 3, model.Product{Name: "Jaggery 1kg", PricePaise: 9000}); err != nil {
		t.Fatalf("CreateProduct after promotion: %v", err)
	}
}

func TestUpdateProduct(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	p, err := svc.UpdateProduct(context.Background(), 2, 5, model.ProductUpdate{
		Name: " Sugar 1kg ", Barcode: " 8901 ", PricePaise: 4800, GSTRate: 5, MinStockLevel: 4,
	})
	if err != nil {
		t.Fatalf("UpdateProduct error: %v", err)
	}
	if p.ID != 5 || repo.productUpdate.Name != "Sugar 1kg" || repo.productUpdate.Barcode != "8901" {
		t.Fatalf("unexpected update: product %+v, written %+v", p, repo.productUpdate)
	}

	if _, err := svc.UpdateProduct(context.Background(), 3, 5, model.ProductUpdate{Name: "Sugar", PricePaise: 4800}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier, got %v", err)
	}
	if _, err := svc.UpdateProduct(context.Background(), 1, 5, model.ProductUpdate{Name: "Sugar"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero price, got %v", err)
	}
	if _, err := svc.UpdateProduct(context.Background(), 1, 5, model.ProductUpdate{Name: "Sugar", PricePaise: 4800, MinStockLevel: -1}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative min stock, got %v", err)
	}

	repo.productErr = repository.ErrBarcodeExists
	if _, err := svc.UpdateProduct(context.Background(), 1, 5, model.ProductUpdate{Name: "Sugar", PricePaise: 4800}); !errors.Is(err, repository.ErrBarcodeExists) {
		t.Fatalf("expected ErrBarcodeExists, got %v", err)
	}
}

func TestDeleteProduct(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	if err := svc.DeleteProduct(context.Background(), 3, 5); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier, got %v", err)
	}
	if repo.deletedProduct != 0 {
		t.Fatalf("cashier must not delete products")
	}

	if err := svc.DeleteProduct(context.Background(), 2, 5); err != nil {
		t.Fatalf("DeleteProduct error: %v", err)
	}
	if repo.deletedProduct != 5 {
		t.Fatalf("deleted product = %d, want 5", repo.deletedProduct)
	}

	repo.productErr = repository.ErrProductNotFound
	if err := svc.DeleteProduct(context.Background(), 2, 6); !errors.Is(err, repository.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestUpdateCustomer(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	dob := time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC)
	c, err := svc.UpdateCustomer(context.Background(), model.Customer{
		ID: 7, Name: " Asha ", Phone: "98000 00007", Address: " MG Road ", DateOfBirth: &dob, LoyaltyPoints: 999,
	})
	if err != nil {
		t.Fatalf("UpdateCustomer error: %v", err)
	}
	if c.Name != "Asha" || c.Phone != "9800000007" || c.Address != "MG Road" {
		t.Fatalf("unexpected customer: %+v", c)
	}

	future := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.UpdateCustomer(context.Background(), model.Customer{ID: 7, Name: "Asha", Phone: "9800000007", DateOfBirth: &future}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for future birth date, got %v", err)
	}
	if _, err := svc.UpdateCustomer(context.Background(), model.Customer{ID: 7, Phone: "9800000007"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without name, got %v", err)
	}
}

func TestDeleteCustomer(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	if err := svc.DeleteCustomer(context.Background(), 3, 7); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier, got %v", err)
	}
	if err := svc.DeleteCustomer(context.Background(), 2, 7); err != nil {
		t.Fatalf("DeleteCustomer error: %v", err)
	}
	if repo.deletedCust != 7 {
		t.Fatalf("deleted customer = %d, want 7", repo.deletedCust)
	}

	repo.deleteCustErr = repository.ErrCustomerInUse
	if err := svc.DeleteCustomer(context.Background(), 1, 8); !errors.Is(err, repository.ErrCustomerInUse) {
		t.Fatalf("expected ErrCustomerInUse, got %v", err)
	}
}

func cashSale() *model.Transaction {
	received, change := int64(25000), int64(5000)
	return &model.Transaction{
		ID:                101,
		InvoiceNumber:     "NM 0043",
		CustomerName:      "Asha",
		CustomerPhone:     "9800000007",
		TotalPaise:        20000,
		PaymentMethod:     model.PaymentMethodCash,
		CashReceivedPaise: &received,
		ChangePaise:       &change,
		Status:            model.TransactionStatusCompleted,
		Items: []model.TransactionItem{
			{ID: 501, ProductName: "Basmati Rice 1kg", Quantity: 2, UnitPricePaise: 10000, TotalPaise: 20000},
		},
	}
}

func TestCorrectTransaction_Details(t *testing.T) {
	repo := newStubRepo()
	repo.transaction = cashSale()
	svc := NewService(repo, nil)

	name, phone, received := " Asha K ", "+91 98000 00008", int64(50000)
	res, err := svc.CorrectTransaction(context.Background(), 1, 101, TransactionCorrection{
		CustomerName:      &name,
		CustomerPhone:     &phone,
		CashReceivedPaise: &received,
		Items:             []ItemCorrection{{ID: 501, ProductName: "Basmati Rice 5kg", Quantity: 1, UnitPricePaise: 48000}},
	})
	if err != nil {
		t.Fatalf("CorrectTransaction error: %v", err)
	}

	if res.CustomerName != "Asha K" || res.CustomerPhone != "+919800000008" {
		t.Fatalf("customer = %q %q", res.CustomerName, res.CustomerPhone)
	}
	if *res.CashReceivedPaise != 50000 || *res.ChangePaise != 30000 {
		t.Fatalf("cash = %d, change = %d", *res.CashReceivedPaise, *res.ChangePaise)
	}
	if len(repo.itemCalls) != 1 || repo.itemCalls[0].TotalPaise != 48000 || repo.itemCalls[0].ProductName != "Basmati Rice 5kg" {
		t.Fatalf("item writes: %+v", repo.itemCalls)
	}
	if res.TotalPaise != 20000 {
		t.Fatalf("header total must not be recalculated, got %d", res.TotalPaise)
	}
	if len(repo.statusCalls)+len(repo.paymentCalls) != 0 {
		t.Fatalf("status and payment must stay untouched")
	}
}

func TestCorrectTransaction_SwitchToCardClearsCash(t *testing.T) {
	repo := newStubRepo()
	repo.transaction = cashSale()
	svc := NewService(repo, nil)

	res, err := svc.CorrectTransaction(context.Background(), 1, 101, TransactionCorrection{PaymentMethod: model.PaymentMethodCard})
	if err != nil {
		t.Fatalf("CorrectTransaction error: %v", err)
	}
	if res.CashReceivedPaise != nil || res.ChangePaise != nil {
		t.Fatalf("cash fields must be cleared for card payment")
	}
	if len(repo.cashCalls) != 1 || len(repo.paymentCalls) != 1 {
		t.Fatalf("writes: cash %d, payment %v", len(repo.cashCalls), repo.paymentCalls)
	}
}

func TestCorrectTransaction_RejectedDetails(t *testing.T) {
	low, some := int64(100), int64(30000)
	tests := []struct {
		name       string
		correction TransactionCorrection
		wantErr    error
	}{
		{
			name:       "cash below total",
			correction: TransactionCorrection{CashReceivedPaise: &low},
			wantErr:    ErrInvalidInput,
		},
		{
			name:       "cash for upi payment",
			correction: TransactionCorrection{PaymentMethod: model.PaymentMethodUPI, CashReceivedPaise: &some},
			wantErr:    ErrInvalidInput,
		},
		{
			name:       "zero quantity",
			correction: TransactionCorrection{Items: []ItemCorrection{{ID: 501, Quantity: 0, UnitPricePaise: 100}}},
			wantErr:    ErrInvalidInput,
		},
		{
			name: "same item twice",
			correction: TransactionCorrection{Items: []ItemCorrection{
				{ID: 501, Quantity: 1, UnitPricePaise: 100},
				{ID: 501, Quantity: 2, UnitPricePaise: 100},
			}},
			wantErr: ErrInvalidInput,
		},
		{
			name:       "item of another transaction",
			correction: TransactionCorrection{Items: []ItemCorrection{{ID: 999, Quantity: 1, UnitPricePaise: 100}}},
			wantErr:    repository.ErrTransactionItemNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			repo.transaction = cashSale()
			svc := NewService(repo, nil)

			_, err := svc.CorrectTransaction(context.Background(), 1, 101, tt.correction)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(repo.itemCalls)+len(repo.cashCalls)+len(repo.paymentCalls) != 0 {
				t.Fatalf("rejected correction must not write")
			}
		})
	}
}

func TestDeleteTransaction(t *testing.T) {
	repo := newStubRepo()
	repo.transaction = cashSale()
	svc := NewService(repo, nil)

	if err := svc.DeleteTransaction(context.Background(), 2, 101); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for manager, got %v", err)
	}
	if repo.deletedTx != 0 {
		t.Fatalf("manager must not delete transactions")
	}

	if err := svc.DeleteTransaction(context.Background(), 1, 101); err != nil {
		t.Fatalf("DeleteTransaction error: %v", err)
	}
	if repo.deletedTx != 101 {
		t.Fatalf("deleted transaction = %d, want 101", repo.deletedTx)
	}

	repo.transaction = nil
	if err := svc.DeleteTransaction(context.Background(), 1, 404); !errors.Is(err, repository.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestListTransactions_ByInvoiceNumber(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	if _, err := svc.ListTransactions(context.Background(), TransactionQuery{InvoiceNumber: " NM 0043 "}); err != nil {
		t.Fatalf("ListTransactions error: %v", err)
	}
	if repo.filter.InvoiceNumber != "NM 0043" {
		t.Fatalf("invoice filter = %q", repo.filter.InvoiceNumber)
	}
}
