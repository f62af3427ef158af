package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/minimart-pos/internal/model"
)

// CreateCashier создаёт учётную запись кассира.
func (r *PostgresRepository) CreateCashier(ctx context.Context, c model.Cashier) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO cashiers (login, password_hash, full_name, role) VALUES ($1, $2, $3, $4) RETURNING id`,
		c.Login, c.PasswordHash, c.FullName, string(c.Role),
	).Scan(&id)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return 0, fmt.Errorf("%w: %s", ErrCashierExists, c.Login)
		}
		return 0, fmt.Errorf("create cashier: %w", err)
	}
	return id, nil
}

// GetCashierByLogin возвращает кассира по логину.
func (r *PostgresRepository) GetCashierByLogin(ctx context.Context, login string) (*model.Cashier, error) {
	return r.getCashier(ctx, `WHERE login = $1`, login)
}

// GetCashier возвращает кассира по идентификатору.
func (r *PostgresRepository) GetCashier(ctx context.Context, id int64) (*model.Cashier, error) {
	return r.getCashier(ctx, `WHERE id = $1`, id)
}

// cashierRegistrationLockKey идентифицирует advisory-блокировку регистрации кассиров.
const cashierRegistrationLockKey int64 = 0x6d696e696d617274

// LockCashierRegistration берёт advisory-блокировку регистрации до конца
// текущей транзакции. Вне транзакции блокировка снимается сразу после запроса.
func (r *PostgresRepository) LockCashierRegistration(ctx context.Context) error {
	if _, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, cashierRegistrationLockKey); err != nil {
		return fmt.Errorf("lock cashier registration: %w", err)
	}
	return nil
}

// ListCashiers возвращает всех сотрудников в порядке регистрации.
func (r *PostgresRepository) ListCashiers(ctx context.Context) ([]model.Cashier, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+cashierColumns+` FROM cashiers ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select cashiers: %w", err)
	}
	defer rows.Close()

	var res []model.Cashier
	for rows.Next() {
		c, err := scanCashier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cashier: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateCashierRole меняет роль сотрудника и возвращает обновлённую запись.
func (r *PostgresRepository) UpdateCashierRole(ctx context.Context, id int64, role model.CashierRole) (*model.Cashier, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`UPDATE cashiers SET role = $2 WHERE id = $1 RETURNING `+cashierColumns,
		id, string(role),
	)

	c, err := scanCashier(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCashierNotFound
		}
		return nil, fmt.Errorf("update cashier role: %w", err)
	}
	return &c, nil
}

// CountCashiers возвращает число зарегистрированных кассиров.
func (r *PostgresRepository) CountCashiers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM cashiers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cashiers: %w", err)
	}
	return n, nil
}

const cashierColumns = `id, login, password_hash, full_name, role, created_at`

func (r *PostgresRepository) getCashier(ctx context.Context, where string, arg any) (*model.Cashier, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+cashierColumns+` FROM cashiers `+where, arg)

	c, err := scanCashier(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCashierNotFound
		}
		return nil, fmt.Errorf("get cashier: %w", err)
	}
	return &c, nil
}

func scanCashier(row pgx.Row) (model.Cashier, error) {
	var (
		c    model.Cashier
		role string
	)
	err := row.Scan(&c.ID, &c.Login, &c.PasswordHash, &c.FullName, &role, &c.CreatedAt)
	c.Role = model.CashierRole(role)
	return c, err
}
