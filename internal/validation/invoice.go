// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// InvoiceSequenceWidth задаёт минимальную ширину номера в счёте. Номер дополняется нулями слева.
const InvoiceSequenceWidth = 4

// ErrInvalidInvoiceNumber возвращается, если номер счёта не соответствует формату "<префикс> <номер>".
var ErrInvalidInvoiceNumber = errors.New("invalid invoice number")

// FormatInvoiceNumber собирает номер счёта из префикса и порядкового номера.
// Порядковый номер дополняется нулями до четырёх знаков, но не обрезается: NM 10000.
func FormatInvoiceNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s %0*d", prefix, InvoiceSequenceWidth, seq)
}

// ParseInvoiceNumber разбирает номер счёта на префикс и порядковый номер.
func ParseInvoiceNumber(number string) (string, int64, error) {
	idx := strings.LastIndexByte(number, ' ')
	if idx <= 0 || idx == len(number)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidInvoiceNumber, number)
	}

	prefix, digits := number[:idx], number[idx+1:]
	if len(digits) < InvoiceSequenceWidth || !isDigits(digits) {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidInvoiceNumber, number)
	}

	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || seq <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidInvoiceNumber, number)
	}

	return prefix, seq, nil
}

// NextInvoiceNumber возвращает номер, следующий за last. Пустой last означает первый счёт с префиксом.
func NextInvoiceNumber(prefix, last string) (string, error) {
	if last == "" {
		return FormatInvoiceNumber(prefix, 1), nil
	}

	lastPrefix, seq, err := ParseInvoiceNumber(last)
	if err != nil {
		return "", err
	}
	if lastPrefix != prefix {
		return "", fmt.Errorf("%w: %q does not start with %q", ErrInvalidInvoiceNumber, last, prefix)
	}

	return FormatInvoiceNumber(prefix, seq+1), nil
}

// IsValidInvoiceNumber проверяет формат номера счёта.
func IsValidInvoiceNumber(number string) bool {
	_, _, err := ParseInvoiceNumber(number)
	return err == nil
}

func isDigits(s string) bool {
	for _, ch := range s {
		if !unicode.IsDigit(ch) {
			return false
		}
	}
	return true
}
