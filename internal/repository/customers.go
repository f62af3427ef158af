package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/minimart-pos/internal/model"
)

const customerColumns = `id, name, phone, email, address, date_of_birth, loyalty_points, total_spent, created_at`

// CreateCustomer регистрирует покупателя.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, c model.Customer) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO customers (name, phone, email, address, date_of_birth)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		c.Name, c.Phone, c.Email, c.Address, c.DateOfBirth,
	).Scan(&id)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return 0, fmt.Errorf("%w: %s", ErrCustomerExists, c.Phone)
		}
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

// GetCustomer возвращает покупателя по идентификатору.
func (r *PostgresRepository) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)

	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

// ListCustomers возвращает покупателей. Непустой search фильтрует по имени или телефону.
func (r *PostgresRepository) ListCustomers(ctx context.Context, search string) ([]model.Customer, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+customerColumns+`
		 FROM customers
		 WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR phone LIKE '%' || $1 || '%'
		 ORDER BY name`,
		search,
	)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	defer rows.Close()

	var res []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateCustomer изменяет контактные данные покупателя. Баланс баллов и сумма
// покупок меняются только продажами.
func (r *PostgresRepository) UpdateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`UPDATE customers
		 SET name = $2, phone = $3, email = $4, address = $5, date_of_birth = $6
		 WHERE id = $1
		 RETURNING `+customerColumns,
		c.ID, c.Name, c.Phone, c.Email, c.Address, c.DateOfBirth,
	)

	updated, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		if _, ok := uniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: %s", ErrCustomerExists, c.Phone)
		}
		return nil, fmt.Errorf("update customer: %w", err)
	}
	return &updated, nil
}

// DeleteCustomer удаляет покупателя. Покупателя, на которого ссылаются чеки
// или журнал баллов, удалить нельзя.
func (r *PostgresRepository) DeleteCustomer(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: customer %d", ErrCustomerInUse, id)
		}
		return fmt.Errorf("delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// UpdateCustomerLoyalty атомарно применяет изменение баланса баллов и суммы покупок.
// Списание не выполняется, если баланс на момент записи меньше списываемого.
func (r *PostgresRepository) UpdateCustomerLoyalty(ctx context.Context, customerID int64, delta model.LoyaltyDelta) (*model.Customer, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`UPDATE customers
		 SET loyalty_points = loyalty_points + $2 - $3,
		     total_spent = total_spent + $4
		 WHERE id = $1 AND loyalty_points >= $3
		 RETURNING `+customerColumns,
		customerID, delta.Earned, delta.Redeemed, delta.SpentPaise,
	)

	c, err := scanCustomer(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("update customer loyalty: %w", err)
		}
		if _, err := r.GetCustomer(ctx, customerID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: customer %d, redeem %d", ErrInsufficientPoints, customerID, delta.Redeemed)
	}
	return &c, nil
}

// AppendLoyaltyLedger добавляет запись в журнал баллов.
func (r *PostgresRepository) AppendLoyaltyLedger(ctx context.Context, e model.LoyaltyLedgerEntry) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO loyalty_ledger (customer_id, transaction_id, earned, redeemed, discount)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.CustomerID, e.TransactionID, e.Earned, e.Redeemed, e.DiscountPaise,
	)
	if err != nil {
		return fmt.Errorf("insert loyalty ledger: %w", err)
	}
	return nil
}

// ListLoyaltyLedger возвращает историю баллов покупателя, новые записи первыми.
func (r *PostgresRepository) ListLoyaltyLedger(ctx context.Context, customerID int64) ([]model.LoyaltyLedgerEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, customer_id, transaction_id, earned, redeemed, discount, created_at
		 FROM loyalty_ledger
		 WHERE customer_id = $1
		 ORDER BY created_at DESC, id DESC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select loyalty ledger: %w", err)
	}
	defer rows.Close()

	var res []model.LoyaltyLedgerEntry
	for rows.Next() {
		var e model.LoyaltyLedgerEntry
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.TransactionID, &e.Earned, &e.Redeemed, &e.DiscountPaise, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan loyalty ledger: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanCustomer(row pgx.Row) (model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.DateOfBirth,
		&c.LoyaltyPoints, &c.TotalSpentPaise, &c.CreatedAt)
	return c, err
}
