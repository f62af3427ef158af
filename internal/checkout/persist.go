package checkout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/minimart-pos/internal/model"
	"github.com/mmeshcher/minimart-pos/internal/repository"
	"github.com/mmeshcher/minimart-pos/internal/validation"
)

// persistInTx записывает продажу в одной транзакции. Если номер счёта занят
// параллельной продажей, транзакция откатывается и повторяется целиком.
func (s *Sequencer) persistInTx(ctx context.Context, sl *sale) error {
	for attempt := 1; ; attempt++ {
		committed := *sl
		err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
			committed.header.Status = model.TransactionStatusCompleted
			if err := s.allocateAndInsertHeader(ctx, &committed); err != nil {
				return err
			}
			for _, st := range s.finishSteps(&committed, false) {
				if err := st.run(ctx); err != nil {
					return fmt.Errorf("%s: %w", st.name, err)
				}
			}
			return nil
		})
		if err == nil {
			*sl = committed
			return nil
		}

		if !errors.Is(err, repository.ErrDuplicateInvoiceNumber) {
			return mapInsertError(err)
		}
		s.metrics.ObserveInvoiceCollision()
		if attempt >= s.cfg.InvoiceRetryLimit {
			return fmt.Errorf("%w after %d attempts: %w", ErrInvoiceAllocationExhausted, attempt, err)
		}
		s.logger.Info("invoice number taken by concurrent checkout, retrying",
			zap.String("invoice", committed.header.InvoiceNumber),
			zap.Int("attempt", attempt))
	}
}

// persistSaga записывает продажу без транзакции хранилища. Заголовок
// сохраняется в статусе pending, остальные шаги выполняются на контексте,
// не зависящем от отмены запроса.
func (s *Sequencer) persistSaga(ctx context.Context, sl *sale) error {
	sl.header.Status = model.TransactionStatusPending

	for attempt := 1; ; attempt++ {
		err := s.allocateAndInsertHeader(ctx, sl)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateInvoiceNumber) {
			return mapInsertError(err)
		}
		s.metrics.ObserveInvoiceCollision()
		if attempt >= s.cfg.InvoiceRetryLimit {
			return fmt.Errorf("%w after %d attempts: %w", ErrInvoiceAllocationExhausted, attempt, err)
		}
		s.logger.Info("invoice number taken by concurrent checkout, retrying",
			zap.String("invoice", sl.header.InvoiceNumber),
			zap.Int("attempt", attempt))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinishTimeout)
	defer cancel()

	for _, st := range s.finishSteps(sl, true) {
		if err := st.run(ctx); err != nil {
			return &InconsistentTransactionError{
				TransactionID: sl.header.ID,
				InvoiceNumber: sl.header.InvoiceNumber,
				Step:          st.name,
				Err:           err,
			}
		}
	}

	sl.header.Status = model.TransactionStatusCompleted
	return nil
}

func (s *Sequencer) allocateAndInsertHeader(ctx context.Context, sl *sale) error {
	err := s.call(ctx, func(ctx context.Context) error {
		last, err := s.store.LastInvoiceNumber(ctx, s.cfg.InvoicePrefix)
		if err != nil {
			return err
		}
		number, err := validation.NextInvoiceNumber(s.cfg.InvoicePrefix, last)
		if err != nil {
			return err
		}
		_, seq, err := validation.ParseInvoiceNumber(number)
		if err != nil {
			return err
		}
		sl.header.InvoiceNumber = number
		sl.header.InvoiceSeq = seq
		return nil
	})
	if err != nil {
		return fmt.Errorf("allocate invoice number: %w", err)
	}

	return s.call(ctx, func(ctx context.Context) error {
		id, err := s.store.InsertTransaction(ctx, sl.header)
		if err != nil {
			return err
		}
		sl.header.ID = id
		return nil
	})
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

// finishSteps возвращает шаги после сохранения заголовка в обязательном порядке.
func (s *Sequencer) finishSteps(sl *sale, markCompleted bool) []step {
	steps := []step{
		{name: StepInsertItems, run: func(ctx context.Context) error {
			return s.call(ctx, func(ctx context.Context) error {
				return s.store.InsertTransactionItems(ctx, sl.header.ID, sl.items)
			})
		}},
		{name: StepDecrementStock, run: func(ctx context.Context) error {
			for _, it := range sl.items {
				err := s.call(ctx, func(ctx context.Context) error {
					return s.store.DecrementStock(ctx, it.ProductID, it.Quantity, sl.header.InvoiceNumber)
				})
				if err != nil {
					return err
				}
			}
			return nil
		}},
	}

	if sl.header.CustomerID != nil {
		steps = append(steps, step{name: StepUpdateLoyalty, run: func(ctx context.Context) error {
			return s.updateLoyalty(ctx, sl)
		}})
	}

	if markCompleted {
		steps = append(steps, step{name: StepMarkCompleted, run: func(ctx context.Context) error {
			return s.call(ctx, func(ctx context.Context) error {
				return s.store.UpdateTransactionStatus(ctx, sl.header.ID, model.TransactionStatusCompleted)
			})
		}})
	}

	return steps
}

func (s *Sequencer) updateLoyalty(ctx context.Context, sl *sale) error {
	h := sl.header
	delta := model.LoyaltyDelta{
		Earned:     h.LoyaltyEarned,
		Redeemed:   h.LoyaltyRedeemed,
		SpentPaise: h.TotalPaise,
	}

	err := s.call(ctx, func(ctx context.Context) error {
		updated, err := s.store.UpdateCustomerLoyalty(ctx, *h.CustomerID, delta)
		if err != nil {
			return err
		}
		sl.customer = updated
		return nil
	})
	if err != nil {
		return err
	}

	if delta.Earned == 0 && delta.Redeemed == 0 {
		return nil
	}

	return s.call(ctx, func(ctx context.Context) error {
		return s.store.AppendLoyaltyLedger(ctx, model.LoyaltyLedgerEntry{
			CustomerID:    *h.CustomerID,
			TransactionID: &h.ID,
			Earned:        delta.Earned,
			Redeemed:      delta.Redeemed,
			DiscountPaise: h.LoyaltyDiscountPaise,
		})
	})
}

// mapInsertError переводит повтор ключа идемпотентности в ошибку уровня продажи.
func mapInsertError(err error) error {
	if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
		return fmt.Errorf("%w: %w", ErrAlreadyCompleted, err)
	}
	return err
}
