package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/minimart-pos/internal/model"
)

// FieldError описывает нарушение правила для одного поля запроса.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// RequestError возвращается, если тело запроса не прошло проверку.
type RequestError struct {
	Fields []FieldError
}

func (e *RequestError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Param != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", f.Field, f.Rule, f.Param))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Rule))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Validator проверяет структуры запросов по тегам validate.
type Validator struct {
	v *validator.Validate
}

// NewValidator создаёт валидатор с правилами предметной области.
// В сообщениях об ошибках поля называются так же, как в JSON.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Ошибки регистрации возможны только при пустом имени тега.
	_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		return model.PaymentMethod(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("invoice_number", func(fl validator.FieldLevel) bool {
		return IsValidInvoiceNumber(fl.Field().String())
	})
	_ = v.RegisterValidation("cashier_role", func(fl validator.FieldLevel) bool {
		return model.CashierRole(fl.Field().String()).Valid()
	})

	return &Validator{v: v}
}

// Struct проверяет структуру и возвращает *RequestError со списком нарушений.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}

	res := &RequestError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		res.Fields = append(res.Fields, FieldError{
			Field: fieldPath(fe.Namespace()),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return res
}

// fieldPath отбрасывает имя корневой структуры: CheckoutRequest.items[0].quantity -> items[0].quantity.
func fieldPath(ns string) string {
	if idx := strings.IndexByte(ns, '.'); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}
