package domain

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of decimal places amounts are stored with
const AmountPlaces = 2

// RoundAmount rounds d to the precision the server stores
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPlaces)
}

// NewValidator returns a validator that understands decimal and Date fields.
//
// Tags: money requires a decimal that is still positive once rounded to
// AmountPlaces; notblank rejects whitespace-only strings; required on a
// Date fails for the zero date.
func NewValidator() *validator.Validate {
	v := validator.New()

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(Date); ok && !d.IsZero() {
			return d.String()
		}
		return nil
	}, Date{})

	_ = v.RegisterValidation("money", isMoney)
	_ = v.RegisterValidation("notblank", validators.NotBlank)

	return v
}

func isMoney(fl validator.FieldLevel) bool {
	value, ok := fl.Field().Interface().(decimal.Decimal)
	return ok && RoundAmount(value).IsPositive()
}
