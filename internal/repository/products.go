package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/minimart-pos/internal/model"
)

const productColumns = `id, name, COALESCE(barcode, ''), price, stock_quantity, gst_rate, price_incl_gst, min_stock_level, created_at, updated_at`

// CreateProduct добавляет товар в каталог.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO products (name, barcode, price, stock_quantity, gst_rate, price_incl_gst, min_stock_level)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)
		 RETURNING id`,
		p.Name, p.Barcode, p.PricePaise, p.StockQuantity, p.GSTRate, p.PriceInclGST, p.MinStockLevel,
	).Scan(&id)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return 0, fmt.Errorf("%w: %s", ErrBarcodeExists, p.Barcode)
		}
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND deleted_at IS NULL`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// ListProducts возвращает каталог, отсортированный по названию.
// Непустой search фильтрует по подстроке названия или точному штрихкоду.
func (r *PostgresRepository) ListProducts(ctx context.Context, search string) ([]model.Product, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+productColumns+`
		 FROM products
		 WHERE deleted_at IS NULL
		   AND ($1 = '' OR name ILIKE '%' || $1 || '%' OR barcode = $1)
		 ORDER BY name`,
		search,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return collectProducts(rows)
}

// ListLowStockProducts возвращает товары, остаток которых не выше порогового.
func (r *PostgresRepository) ListLowStockProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+productColumns+`
		 FROM products
		 WHERE deleted_at IS NULL AND stock_quantity <= min_stock_level
		 ORDER BY stock_quantity, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select low stock products: %w", err)
	}
	return collectProducts(rows)
}

// UpdateProduct изменяет карточку товара и возвращает её новое состояние.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, id int64, u model.ProductUpdate) (*model.Product, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`UPDATE products
		 SET name = $2, barcode = NULLIF($3, ''), price = $4, gst_rate = $5,
		     price_incl_gst = $6, min_stock_level = $7, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+productColumns,
		id, u.Name, u.Barcode, u.PricePaise, u.GSTRate, u.PriceInclGST, u.MinStockLevel,
	)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		if _, ok := uniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: %s", ErrBarcodeExists, u.Barcode)
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	return &p, nil
}

// DeleteProduct убирает товар из каталога. Строка остаётся для старых чеков
// и журнала движения, штрихкод освобождается.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE products
		 SET deleted_at = now(), barcode = NULL, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// GetProductsByIDs возвращает товары по списку идентификаторов.
// Отсутствующие идентификаторы в результат не попадают.
func (r *PostgresRepository) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) AND deleted_at IS NULL`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select products by ids: %w", err)
	}

	list, err := collectProducts(rows)
	if err != nil {
		return nil, err
	}

	res := make(map[int64]model.Product, len(list))
	for _, p := range list {
		res[p.ID] = p
	}
	return res, nil
}

// DecrementStock уменьшает остаток товара на qty и пишет движение "sale".
// Условие stock_quantity >= qty проверяется в том же запросе, поэтому
// параллельные продажи не уводят остаток в минус.
func (r *PostgresRepository) DecrementStock(ctx context.Context, productID int64, qty int, reference string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`WITH updated AS (
			UPDATE products
			SET stock_quantity = stock_quantity - $2, updated_at = now()
			WHERE id = $1 AND deleted_at IS NULL AND stock_quantity >= $2
			RETURNING id
		)
		INSERT INTO stock_movements (product_id, movement_type, quantity, reference)
		SELECT id, $3, -$2, $4 FROM updated`,
		productID, qty, string(model.StockMovementSale), reference,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetProduct(ctx, productID); err != nil {
		return err
	}
	return fmt.Errorf("%w: product %d, requested %d", ErrInsufficientStock, productID, qty)
}

// AdjustStock изменяет остаток на delta вручную и пишет движение "adjustment".
func (r *PostgresRepository) AdjustStock(ctx context.Context, productID int64, delta int, note string, cashierID int64) (*model.Product, error) {
	var res *model.Product

	err := r.WithTransaction(ctx, func(ctx context.Context) error {
		row := r.conn(ctx).QueryRow(ctx,
			`UPDATE products
			 SET stock_quantity = stock_quantity + $2, updated_at = now()
			 WHERE id = $1 AND deleted_at IS NULL AND stock_quantity + $2 >= 0
			 RETURNING `+productColumns,
			productID, delta,
		)
		p, err := scanProduct(row)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("adjust stock: %w", err)
			}
			if _, err := r.GetProduct(ctx, productID); err != nil {
				return err
			}
			return fmt.Errorf("%w: product %d, delta %d", ErrInsufficientStock, productID, delta)
		}

		_, err = r.conn(ctx).Exec(ctx,
			`INSERT INTO stock_movements (product_id, movement_type, quantity, reference, created_by)
			 VALUES ($1, $2, $3, $4, $5)`,
			productID, string(model.StockMovementAdjustment), delta, note, cashierID,
		)
		if err != nil {
			return fmt.Errorf("insert stock movement: %w", err)
		}

		res = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListStockMovements возвращает последние движения товара.
func (r *PostgresRepository) ListStockMovements(ctx context.Context, productID int64, limit int) ([]model.StockMovement, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, product_id, movement_type, quantity, reference, created_by, created_at
		 FROM stock_movements
		 WHERE product_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		productID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select stock movements: %w", err)
	}
	defer rows.Close()

	var res []model.StockMovement
	for rows.Next() {
		var (
			m   model.StockMovement
			typ string
		)
		if err := rows.Scan(&m.ID, &m.ProductID, &typ, &m.Quantity, &m.Reference, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		m.Type = model.StockMovementType(typ)
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Barcode, &p.PricePaise, &p.StockQuantity, &p.GSTRate,
		&p.PriceInclGST, &p.MinStockLevel, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func collectProducts(rows pgx.Rows) ([]model.Product, error) {
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
