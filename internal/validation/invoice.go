// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/kassa-system/internal/model"
)

// Validator проверяет структуры запросов по тегам validate.
type Validator struct {
	v *validator.Validate
}

// New создаёт валидатор структур.
func New() *Validator {
	return &Validator{v: validator.New()}
}

// Struct проверяет структуру и возвращает ошибку с перечислением
// нарушенных полей в читаемом виде.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("field %s is required", fe.Field()))
		case "gt":
			parts = append(parts, fmt.Sprintf("field %s must be greater than %s", fe.Field(), fe.Param()))
		case "gte":
			parts = append(parts, fmt.Sprintf("field %s must be at least %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("field %s is invalid", fe.Field()))
		}
	}

	return errors.New(strings.Join(parts, "; "))
}

// IsValidInvoiceStatus проверяет, что статус входит в список допустимых.
func IsValidInvoiceStatus(status model.InvoiceStatus) bool {
	for _, s := range model.KnownInvoiceStatuses {
		if s == status {
			return true
		}
	}
	return false
}
