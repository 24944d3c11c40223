package utils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct validates `validate` tags on normalized event payloads before
// any store or reconciler touches them.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
