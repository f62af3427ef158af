package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/mmeshcher/minimart-pos/internal/model"
	"github.com/mmeshcher/minimart-pos/internal/repository"
	"github.com/mmeshcher/minimart-pos/internal/validation"
)

// memState содержит данные хранилища, которые откатываются вместе с транзакцией.
type memState struct {
	products     map[int64]model.Product
	customers    map[int64]model.Customer
	transactions []model.Transaction
	items        map[int64][]model.TransactionItem
	ledger       []model.LoyaltyLedgerEntry
}

func (s memState) clone() memState {
	c := memState{
		products:     make(map[int64]model.Product, len(s.products)),
		customers:    make(map[int64]model.Customer, len(s.customers)),
		transactions: append([]model.Transaction(nil), s.transactions...),
		items:        make(map[int64][]model.TransactionItem, len(s.items)),
		ledger:       append([]model.LoyaltyLedgerEntry(nil), s.ledger...),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]model.TransactionItem(nil), v...)
	}
	return c
}

// memStore хранит данные в памяти и не поддерживает транзакции.
type memStore struct {
	mu    sync.Mutex
	state memState

	cashiers map[int64]model.Cashier
	settings model.StoreSettings
	// чеки параллельных продаж, не откатываются
	foreign []model.Transaction
	nextID  int64
	calls   []string

	// сколько раз вставка заголовка обнаружит, что номер уже занят
	duplicateInvoices int
	failDecrement     error
	failLoyalty       error
	afterInsert       func()
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			products: map[int64]model.Product{
				1: {ID: 1, Name: "Basmati Rice 1kg", PricePaise: 10000, StockQuantity: 10, GSTRate: 18, PriceInclGST: true},
				2: {ID: 2, Name: "Sunflower Oil 1L", PricePaise: 43700, StockQuantity: 5, GSTRate: 0, PriceInclGST: false},
				3: {ID: 3, Name: "Toor Dal 1kg", PricePaise: 150000, StockQuantity: 3, GSTRate: 0, PriceInclGST: false},
			},
			customers: map[int64]model.Customer{
				7: {ID: 7, Name: "Asha", Phone: "9800000007", LoyaltyPoints: 250},
			},
			items: map[int64][]model.TransactionItem{},
		},
		cashiers: map[int64]model.Cashier{
			1: {ID: 1, Login: "till1", FullName: "Ravi", Role: model.CashierRoleCashier},
		},
		settings: model.StoreSettings{StoreName: "NATIONAL MINI MART", ReceiptFooter: "Thank You! Visit Again!"},
		nextID:   100,
	}
}

func (s *memStore) record(name string) {
	s.calls = append(s.calls, name)
}

// writes возвращает вызовы, изменяющие данные.
func (s *memStore) writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []string
	for _, c := range s.calls {
		switch c {
		case "FindTransactionByIdempotencyKey", "GetProductsByIDs", "GetCustomer", "GetCashier", "GetSettings":
			continue
		}
		res = append(res, c)
	}
	return res
}

func (s *memStore) seedTransaction(prefix string, seq int64, key string) {
	s.state.transactions = append(s.state.transactions, model.Transaction{
		ID:             seq,
		InvoiceNumber:  validation.FormatInvoiceNumber(prefix, seq),
		InvoicePrefix:  prefix,
		InvoiceSeq:     seq,
		IdempotencyKey: key,
		Status:         model.TransactionStatusCompleted,
	})
}

func (s *memStore) transaction(id int64) (model.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.state.transactions {
		if t.ID == id {
			return t, true
		}
	}
	return model.Transaction{}, false
}

func (s *memStore) product(id int64) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.products[id]
}

func (s *memStore) customer(id int64) model.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.customers[id]
}

func (s *memStore) FindTransactionByIdempotencyKey(_ context.Context, key string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FindTransactionByIdempotencyKey")

	for _, t := range s.state.transactions {
		if t.IdempotencyKey == key {
			return &t, nil
		}
	}
	return nil, repository.ErrTransactionNotFound
}

func (s *memStore) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetProductsByIDs")

	res := make(map[int64]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.state.products[id]; ok {
			res[id] = p
		}
	}
	return res, nil
}

func (s *memStore) GetCustomer(_ context.Context, id int64) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetCustomer")

	c, ok := s.state.customers[id]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	return &c, nil
}

func (s *memStore) GetCashier(_ context.Context, id int64) (*model.Cashier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetCashier")

	c, ok := s.cashiers[id]
	if !ok {
		return nil, repository.ErrCashierNotFound
	}
	return &c, nil
}

func (s *memStore) GetSettings(context.Context) (*model.StoreSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetSettings")

	settings := s.settings
	return &settings, nil
}

func (s *memStore) LastInvoiceNumber(_ context.Context, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("LastInvoiceNumber")

	var last model.Transaction
	for _, list := range [][]model.Transaction{s.state.transactions, s.foreign} {
		for _, t := range list {
			if t.InvoicePrefix == prefix && t.InvoiceSeq > last.InvoiceSeq {
				last = t
			}
		}
	}
	return last.InvoiceNumber, nil
}

func (s *memStore) InsertTransaction(_ context.Context, t model.Transaction) (int64, error) {
	s.mu.Lock()
	s.record("InsertTransaction")

	if s.duplicateInvoices > 0 {
		s.duplicateInvoices--
		// Параллельная продажа успела занять этот номер.
		s.foreign = append(s.foreign, model.Transaction{InvoiceNumber: t.InvoiceNumber, InvoicePrefix: t.InvoicePrefix, InvoiceSeq: t.InvoiceSeq})
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", repository.ErrDuplicateInvoiceNumber, t.InvoiceNumber)
	}

	for _, list := range [][]model.Transaction{s.state.transactions, s.foreign} {
		for _, existing := range list {
			if existing.InvoiceNumber == t.InvoiceNumber {
				s.mu.Unlock()
				return 0, fmt.Errorf("%w: %s", repository.ErrDuplicateInvoiceNumber, t.InvoiceNumber)
			}
			if existing.IdempotencyKey != "" && existing.IdempotencyKey == t.IdempotencyKey {
				s.mu.Unlock()
				return 0, fmt.Errorf("%w: %s", repository.ErrDuplicateIdempotencyKey, t.IdempotencyKey)
			}
		}
	}

	s.nextID++
	t.ID = s.nextID
	s.state.transactions = append(s.state.transactions, t)
	hook := s.afterInsert
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return t.ID, nil
}

func (s *memStore) InsertTransactionItems(_ context.Context, transactionID int64, items []model.TransactionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("InsertTransactionItems")

	for i := range items {
		s.nextID++
		items[i].ID = s.nextID
		items[i].TransactionID = transactionID
	}
	s.state.items[transactionID] = append(s.state.items[transactionID], items...)
	return nil
}

func (s *memStore) DecrementStock(ctx context.Context, productID int64, qty int, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("DecrementStock")

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failDecrement != nil {
		return s.failDecrement
	}

	p, ok := s.state.products[productID]
	if !ok {
		return repository.ErrProductNotFound
	}
	if p.StockQuantity < qty {
		return repository.ErrInsufficientStock
	}
	p.StockQuantity -= qty
	s.state.products[productID] = p
	return nil
}

func (s *memStore) UpdateCustomerLoyalty(_ context.Context, customerID int64, delta model.LoyaltyDelta) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateCustomerLoyalty")

	if s.failLoyalty != nil {
		return nil, s.failLoyalty
	}

	c, ok := s.state.customers[customerID]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	if c.LoyaltyPoints < delta.Redeemed {
		return nil, repository.ErrInsufficientPoints
	}
	c.LoyaltyPoints += delta.Earned - delta.Redeemed
	c.TotalSpentPaise += delta.SpentPaise
	s.state.customers[customerID] = c
	return &c, nil
}

func (s *memStore) AppendLoyaltyLedger(_ context.Context, e model.LoyaltyLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AppendLoyaltyLedger")

	s.state.ledger = append(s.state.ledger, e)
	return nil
}

func (s *memStore) UpdateTransactionStatus(_ context.Context, id int64, status model.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateTransactionStatus")

	for i := range s.state.transactions {
		if s.state.transactions[i].ID == id {
			s.state.transactions[i].Status = status
			return nil
		}
	}
	return repository.ErrTransactionNotFound
}

// txStore добавляет к memStore транзакции с откатом при ошибке.
type txStore struct {
	*memStore
	txCalls int
}

func (s *txStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.txCalls++
	snapshot := s.state.clone()
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.state = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}
