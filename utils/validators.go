package utils

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// PAN card format: 5 uppercase letters, 4 digits, 1 uppercase letter.
var panRegexp = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

// IsValidPAN reports whether s is a correctly formatted PAN. Lowercase input
// is rejected, not normalized.
func IsValidPAN(s string) bool {
	return panRegexp.MatchString(s)
}

// RegisterValidators adds custom rules to gin's binding validator. Call once
// at startup before registering routes.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("pan", func(fl validator.FieldLevel) bool {
			return IsValidPAN(fl.Field().String())
		})
	}
}
