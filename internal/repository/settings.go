package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/minimart-pos/internal/model"
)

// settingFields связывает ключи таблицы settings с полями реквизитов магазина.
func settingFields(s *model.StoreSettings) map[string]*string {
	return map[string]*string{
		"store_name":       &s.StoreName,
		"store_address":    &s.StoreAddress,
		"store_phone":      &s.StorePhone,
		"gst_number":       &s.GSTNumber,
		"default_gst_rate": &s.DefaultGSTRate,
		"receipt_footer":   &s.ReceiptFooter,
	}
}

// GetSettings возвращает реквизиты магазина. Неизвестные ключи игнорируются.
func (r *PostgresRepository) GetSettings(ctx context.Context) (*model.StoreSettings, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer rows.Close()

	var res model.StoreSettings
	fields := settingFields(&res)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		if dst, ok := fields[key]; ok {
			*dst = value
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &res, nil
}

// UpdateSettings сохраняет все реквизиты магазина одним пакетом.
func (r *PostgresRepository) UpdateSettings(ctx context.Context, s model.StoreSettings) error {
	return r.WithTransaction(ctx, func(ctx context.Context) error {
		batch := &pgx.Batch{}
		for key, value := range settingFields(&s) {
			batch.Queue(
				`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
				 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
				key, *value,
			)
		}

		tx, ok := ctx.Value(txKey{}).(pgx.Tx)
		if !ok {
			return fmt.Errorf("update settings: transaction is not open")
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("update settings: %w", err)
		}
		return nil
	})
}
