package middleware

import (
	"errors"
	"reflect"
	"strings"

	"github.com/Kyz7/chainverse/internal/response"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// BindBody parses the JSON body into v and validates its struct tags. When it
// returns false the error response has already been written and its result
// should be returned from the handler.
func BindBody(c *fiber.Ctx, v interface{}) (bool, error) {
	if err := c.BodyParser(v); err != nil {
		return false, response.BadRequest(c, "Invalid request body", err.Error())
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return false, response.BadRequest(c, "Invalid request body", err.Error())
		}
		return false, response.ValidationError(c, fieldErrors(verrs))
	}

	return true, nil
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			out[field] = field + " is required"
		case "email":
			out[field] = field + " must be a valid email"
		case "min":
			out[field] = field + " must be at least " + fe.Param() + " characters"
		case "max":
			out[field] = field + " must be at most " + fe.Param() + " characters"
		case "len":
			out[field] = field + " must be exactly " + fe.Param() + " characters"
		case "numeric":
			out[field] = field + " must contain only digits"
		default:
			out[field] = field + " is invalid"
		}
	}
	return out
}
