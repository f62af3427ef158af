package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/minimart-pos/internal/model"
)

const transactionColumns = `id, invoice_number, invoice_prefix, invoice_seq, idempotency_key, cashier_id,
	customer_id, customer_name, customer_phone, subtotal, gst_amount, total_amount, rounding,
	loyalty_earned, loyalty_redeemed, loyalty_discount, payment_method, cash_received, change_amount,
	status, created_at, updated_at`

// TransactionFilter задаёт условия выборки истории чеков.
type TransactionFilter struct {
	From          time.Time
	To            time.Time
	Status        model.TransactionStatus
	InvoiceNumber string
	Limit         int
}

// LastInvoiceNumber возвращает последний выданный номер счёта с префиксом или
// пустую строку, если счетов ещё не было. Следующий номер не резервируется:
// уникальность проверяется при вставке заголовка чека.
func (r *PostgresRepository) LastInvoiceNumber(ctx context.Context, prefix string) (string, error) {
	var last string
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT invoice_number
		 FROM transactions
		 WHERE invoice_prefix = $1
		 ORDER BY invoice_seq DESC
		 LIMIT 1`,
		prefix,
	).Scan(&last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("select last invoice number: %w", err)
	}
	return last, nil
}

// InsertTransaction сохраняет заголовок чека и возвращает его идентификатор.
func (r *PostgresRepository) InsertTransaction(ctx context.Context, t model.Transaction) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO transactions (
			invoice_number, invoice_prefix, invoice_seq, idempotency_key, cashier_id,
			customer_id, customer_name, customer_phone, subtotal, gst_amount, total_amount, rounding,
			loyalty_earned, loyalty_redeemed, loyalty_discount, payment_method, cash_received, change_amount, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id`,
		t.InvoiceNumber, t.InvoicePrefix, t.InvoiceSeq, t.IdempotencyKey, t.CashierID,
		t.CustomerID, t.CustomerName, t.CustomerPhone, t.SubtotalPaise, t.GSTPaise, t.TotalPaise, t.RoundingPaise,
		t.LoyaltyEarned, t.LoyaltyRedeemed, t.LoyaltyDiscountPaise, string(t.PaymentMethod),
		t.CashReceivedPaise, t.ChangePaise, string(t.Status),
	).Scan(&id)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case invoiceNumberConstraint:
				return 0, fmt.Errorf("%w: %s", ErrDuplicateInvoiceNumber, t.InvoiceNumber)
			case idempotencyKeyConstraint:
				return 0, fmt.Errorf("%w: %s", ErrDuplicateIdempotencyKey, t.IdempotencyKey)
			}
		}
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return id, nil
}

// InsertTransactionItems сохраняет снимки строк чека и проставляет им идентификаторы.
func (r *PostgresRepository) InsertTransactionItems(ctx context.Context, transactionID int64, items []model.TransactionItem) error {
	for i := range items {
		it := &items[i]
		err := r.conn(ctx).QueryRow(ctx,
			`INSERT INTO transaction_items (
				transaction_id, product_id, product_name, quantity, unit_price, gst_rate, price_incl_gst, total_price
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			transactionID, it.ProductID, it.ProductName, it.Quantity, it.UnitPricePaise, it.GSTRate,
			it.PriceInclGST, it.TotalPaise,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert transaction item %d: %w", i, err)
		}
		it.TransactionID = transactionID
	}
	return nil
}

// UpdateTransactionStatus меняет статус чека. Остатки и баллы не затрагиваются.
func (r *PostgresRepository) UpdateTransactionStatus(ctx context.Context, id int64, status model.TransactionStatus) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE transactions SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// UpdateTransactionPaymentMethod исправляет способ оплаты чека.
func (r *PostgresRepository) UpdateTransactionPaymentMethod(ctx context.Context, id int64, method model.PaymentMethod) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE transactions SET payment_method = $2, updated_at = now() WHERE id = $1`,
		id, string(method),
	)
	if err != nil {
		return fmt.Errorf("update transaction payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// UpdateTransactionCustomer исправляет имя и телефон покупателя, напечатанные в чеке.
func (r *PostgresRepository) UpdateTransactionCustomer(ctx context.Context, id int64, name, phone string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE transactions SET customer_name = $2, customer_phone = $3, updated_at = now() WHERE id = $1`,
		id, name, phone,
	)
	if err != nil {
		return fmt.Errorf("update transaction customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// UpdateTransactionCash исправляет полученную наличными сумму и сдачу.
func (r *PostgresRepository) UpdateTransactionCash(ctx context.Context, id int64, received, change *int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE transactions SET cash_received = $2, change_amount = $3, updated_at = now() WHERE id = $1`,
		id, received, change,
	)
	if err != nil {
		return fmt.Errorf("update transaction cash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// UpdateTransactionItem исправляет снимок строки чека. Остатки не затрагиваются.
func (r *PostgresRepository) UpdateTransactionItem(ctx context.Context, transactionID int64, it model.TransactionItem) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE transaction_items
		 SET product_name = $3, quantity = $4, unit_price = $5, total_price = $6
		 WHERE id = $1 AND transaction_id = $2`,
		it.ID, transactionID, it.ProductName, it.Quantity, it.UnitPricePaise, it.TotalPaise,
	)
	if err != nil {
		return fmt.Errorf("update transaction item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %d of transaction %d", ErrTransactionItemNotFound, it.ID, transactionID)
	}
	return nil
}

// DeleteTransaction удаляет чек вместе со строками. Записи журнала баллов
// остаются без ссылки на чек, остатки и баллы не возвращаются.
func (r *PostgresRepository) DeleteTransaction(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// FindTransactionByIdempotencyKey возвращает чек, сохранённый с указанным ключом.
func (r *PostgresRepository) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*model.Transaction, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`,
		key,
	)

	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("find transaction by idempotency key: %w", err)
	}
	return &t, nil
}

// GetTransaction возвращает чек вместе со строками.
func (r *PostgresRepository) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)

	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	items, err := r.getTransactionItems(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Items = items

	return &t, nil
}

func (r *PostgresRepository) getTransactionItems(ctx context.Context, transactionID int64) ([]model.TransactionItem, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, transaction_id, product_id, product_name, quantity, unit_price, gst_rate, price_incl_gst, total_price
		 FROM transaction_items
		 WHERE transaction_id = $1
		 ORDER BY id`,
		transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transaction items: %w", err)
	}
	defer rows.Close()

	var res []model.TransactionItem
	for rows.Next() {
		var it model.TransactionItem
		if err := rows.Scan(&it.ID, &it.TransactionID, &it.ProductID, &it.ProductName, &it.Quantity,
			&it.UnitPricePaise, &it.GSTRate, &it.PriceInclGST, &it.TotalPaise); err != nil {
			return nil, fmt.Errorf("scan transaction item: %w", err)
		}
		res = append(res, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListTransactions возвращает заголовки чеков по фильтру, новые первыми.
func (r *PostgresRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]model.Transaction, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		   AND ($2::timestamptz IS NULL OR created_at < $2)
		   AND ($3 = '' OR status = $3)
		   AND ($4 = '' OR invoice_number = $4)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $5`,
		nullTime(f.From), nullTime(f.To), string(f.Status), f.InvoiceNumber, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	return collectTransactions(rows)
}

// ListStalePendingTransactions возвращает чеки, оставшиеся в статусе pending дольше порога.
func (r *PostgresRepository) ListStalePendingTransactions(ctx context.Context, olderThan time.Time, limit int) ([]model.Transaction, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE status = $1 AND created_at < $2
		 ORDER BY created_at
		 LIMIT $3`,
		string(model.TransactionStatusPending), olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select stale pending transactions: %w", err)
	}
	return collectTransactions(rows)
}

// CountStalePendingTransactions считает чеки, оставшиеся в статусе pending дольше порога.
func (r *PostgresRepository) CountStalePendingTransactions(ctx context.Context, olderThan time.Time) (int64, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE status = $1 AND created_at < $2`,
		string(model.TransactionStatusPending), olderThan,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale pending transactions: %w", err)
	}
	return n, nil
}

// SalesSummary считает сводку по завершённым чекам начиная с from.
// Выручка за сегодня считается от начала суток today.
func (r *PostgresRepository) SalesSummary(ctx context.Context, from, today time.Time) (*model.SalesSummary, error) {
	res := &model.SalesSummary{From: from}

	err := r.conn(ctx).QueryRow(ctx,
		`SELECT
			COALESCE(SUM(total_amount) FILTER (WHERE created_at >= $3), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE created_at >= $2), 0),
			COUNT(*) FILTER (WHERE created_at >= $2)
		 FROM transactions
		 WHERE status = $1 AND created_at >= LEAST($2::timestamptz, $3::timestamptz)`,
		string(model.TransactionStatusCompleted), from, today,
	).Scan(&res.TodayPaise, &res.PeriodPaise, &res.Transactions)
	if err != nil {
		return nil, fmt.Errorf("sum sales: %w", err)
	}

	if res.Transactions > 0 {
		res.AverageOrderPaise = res.PeriodPaise / res.Transactions
	}

	var method string
	err = r.conn(ctx).QueryRow(ctx,
		`SELECT payment_method
		 FROM transactions
		 WHERE status = $1 AND created_at >= $2
		 GROUP BY payment_method
		 ORDER BY COUNT(*) DESC, payment_method
		 LIMIT 1`,
		string(model.TransactionStatusCompleted), from,
	).Scan(&method)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("select top payment method: %w", err)
	}
	res.TopPaymentMethod = model.PaymentMethod(method)

	err = r.conn(ctx).QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM products WHERE deleted_at IS NULL), (SELECT COUNT(*) FROM customers)`,
	).Scan(&res.Products, &res.Customers)
	if err != nil {
		return nil, fmt.Errorf("count catalog: %w", err)
	}

	return res, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var (
		t      model.Transaction
		method string
		status string
	)
	err := row.Scan(&t.ID, &t.InvoiceNumber, &t.InvoicePrefix, &t.InvoiceSeq, &t.IdempotencyKey, &t.CashierID,
		&t.CustomerID, &t.CustomerName, &t.CustomerPhone, &t.SubtotalPaise, &t.GSTPaise, &t.TotalPaise, &t.RoundingPaise,
		&t.LoyaltyEarned, &t.LoyaltyRedeemed, &t.LoyaltyDiscountPaise, &method, &t.CashReceivedPaise, &t.ChangePaise,
		&status, &t.CreatedAt, &t.UpdatedAt)
	t.PaymentMethod = model.PaymentMethod(method)
	t.Status = model.TransactionStatus(status)
	return t, err
}

func collectTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
