package printer

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/minimart-pos/internal/metrics"
	"github.com/mmeshcher/minimart-pos/internal/model"
)

// Результаты передачи чека на печать.
const (
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
	DeliveryDropped = "dropped"
)

// Sender отправляет документ на печать.
type Sender interface {
	SendReceipt(ctx context.Context, doc ReceiptDocument) (int, time.Duration, error)
}

// Spooler передаёт чеки на печать в фоне, чтобы продажа не ждала принтер.
type Spooler struct {
	sender   Sender
	queue    chan ReceiptDocument
	logger   *zap.Logger
	metrics  *metrics.Metrics
	attempts int
	backoff  time.Duration
}

// NewSpooler создаёт очередь печати указанной ёмкости.
func NewSpooler(sender Sender, capacity int, logger *zap.Logger, m *metrics.Metrics) *Spooler {
	if capacity <= 0 {
		capacity = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Spooler{
		sender:   sender,
		queue:    make(chan ReceiptDocument, capacity),
		logger:   logger,
		metrics:  m,
		attempts: 3,
		backoff:  200 * time.Millisecond,
	}
}

// Enqueue ставит чек в очередь печати. Если очередь заполнена, чек не печатается.
func (s *Spooler) Enqueue(r model.Receipt) bool {
	doc := NewReceiptDocument(r)
	select {
	case s.queue <- doc:
		return true
	default:
		s.logger.Warn("receipt print queue is full, dropping receipt",
			zap.String("invoice", doc.InvoiceNumber))
		s.metrics.ObserveReceiptDelivery(DeliveryDropped)
		return false
	}
}

// Run обрабатывает очередь до отмены контекста.
func (s *Spooler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case doc := <-s.queue:
			s.deliver(ctx, doc)
		}
	}
}

// deliver отправляет чек, повторяя попытку при ошибке связи (с удвоением паузы)
// и при ответе 429 (с паузой из Retry-After).
func (s *Spooler) deliver(ctx context.Context, doc ReceiptDocument) {
	backoff := s.backoff
	for attempt := 1; attempt <= s.attempts; attempt++ {
		statusCode, retryAfter, err := s.sender.SendReceipt(ctx, doc)
		if err != nil {
			s.logger.Warn("failed to send receipt to printer",
				zap.String("invoice", doc.InvoiceNumber),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if attempt == s.attempts || !sleep(ctx, backoff) {
				break
			}
			backoff *= 2
			continue
		}

		if statusCode != http.StatusTooManyRequests {
			s.metrics.ObserveReceiptDelivery(DeliverySent)
			return
		}

		s.logger.Debug("printer is throttling",
			zap.String("invoice", doc.InvoiceNumber),
			zap.Duration("retry_after", retryAfter))
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		if attempt == s.attempts || !sleep(ctx, retryAfter) {
			break
		}
	}

	s.logger.Warn("receipt not printed", zap.String("invoice", doc.InvoiceNumber))
	s.metrics.ObserveReceiptDelivery(DeliveryFailed)
}

// sleep ждёт d и возвращает false, если контекст отменён раньше.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
