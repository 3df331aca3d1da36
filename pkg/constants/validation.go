package constants

import (
	"unicode"

	"github.com/go-playground/validator/v10"
)

const MinPasswordLength = 10

// Validate is the shared struct validator. It knows the "tenant_identifier" and "strong_password" tags.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("strong_password", strongPassword); err != nil {
		panic(err)
	}
	return v
}

// RegisterIdentifierRule installs the "tenant_identifier" tag. It lives with the tenant entity, so
// the entity package registers it instead of this package importing the domain.
func RegisterIdentifierRule(valid func(string) bool) {
	if err := Validate.RegisterValidation("tenant_identifier", func(fl validator.FieldLevel) bool {
		return valid(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

func strongPassword(fl validator.FieldLevel) bool {
	pw := fl.Field().String()
	if len([]rune(pw)) < MinPasswordLength {
		return false
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}
