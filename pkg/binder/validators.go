package binder

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	sourceKeyRE = regexp.MustCompile(`^[0-9a-f]{12}$`)
)

// sourceKeyValidator ensures the value looks like a derived source key:
// twelve lowercase hex characters. The empty string is allowed so the
// validator can be combined with optional fields; add `required` to the
// validate tag when the key must be present.
func sourceKeyValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return sourceKeyRE.MatchString(value)
}
