package checkout

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/minimart-pos/internal/metrics"
	"github.com/mmeshcher/minimart-pos/internal/model"
)

// PendingLister возвращает чеки, зависшие в статусе pending.
type PendingLister interface {
	ListStalePendingTransactions(ctx context.Context, olderThan time.Time, limit int) ([]model.Transaction, error)
	CountStalePendingTransactions(ctx context.Context, olderThan time.Time) (int64, error)
}

// Reconciler периодически ищет чеки, оставшиеся в статусе pending после сбоя
// продажи, и сообщает о них в лог и метрики. Исправление выполняет администратор.
type Reconciler struct {
	store     PendingLister
	interval  time.Duration
	threshold time.Duration
	batch     int
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewReconciler создаёт фоновую проверку зависших чеков.
func NewReconciler(store PendingLister, interval, threshold time.Duration, logger *zap.Logger, m *metrics.Metrics) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:     store,
		interval:  interval,
		threshold: threshold,
		batch:     100,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Run выполняет проверку с заданным интервалом до отмены контекста.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("failed to list pending transactions", zap.Error(err))
			}
		}
	}
}

// RunOnce выполняет одну проверку и возвращает общее число зависших чеков.
// В лог попадает не больше batch самых старых из них.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	olderThan := r.now().Add(-r.threshold)

	total, err := r.store.CountStalePendingTransactions(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	r.metrics.SetPendingTransactions(int(total))
	if total == 0 {
		return 0, nil
	}

	stale, err := r.store.ListStalePendingTransactions(ctx, olderThan, r.batch)
	if err != nil {
		return 0, err
	}

	for _, t := range stale {
		r.logger.Warn("transaction stuck in pending status",
			zap.Int64("transaction_id", t.ID),
			zap.String("invoice", t.InvoiceNumber),
			zap.Time("created_at", t.CreatedAt),
			zap.Int64("total_paise", t.TotalPaise))
	}
	if int64(len(stale)) < total {
		r.logger.Warn("more transactions stuck in pending status than logged",
			zap.Int64("total", total),
			zap.Int("logged", len(stale)))
	}

	return int(total), nil
}
