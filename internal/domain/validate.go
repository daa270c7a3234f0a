package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func ValidateStroke(s StrokeData) error {
	if len(s.Points) == 0 {
		return ErrEmptyStroke
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStroke, err)
	}
	return nil
}

// Struct проверяет произвольную структуру по тегам validate.
func Struct(v any) error {
	return validate.Struct(v)
}
