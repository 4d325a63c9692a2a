package middlewares

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

// newValidator builds the shared instance, keyed on json tags so the
// 422 fields map speaks the API's own field names (userId, rating, ...)
// instead of Go struct names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// BindAndValidate parses the request body into dst and validates it.
// Returns fiber.ErrBadRequest for parse errors and a
// validator.ValidationErrors for validation issues.
func BindAndValidate(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return validate.Struct(dst)
}

// ValidateStruct validates any struct value using the shared validator instance.
func ValidateStruct(v interface{}) error {
	return validate.Struct(v)
}
