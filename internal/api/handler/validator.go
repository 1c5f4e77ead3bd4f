package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	passwordMinLen = 8
	// bcrypt ignores input past 72 bytes.
	passwordMaxLen = 72
)

// echoValidator wraps go-playground/validator so Echo can call c.Validate(req).
type echoValidator struct {
	v *validator.Validate
}

// NewValidator returns an echoValidator ready to be assigned to echo.Echo.Validator.
func NewValidator() *echoValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("password", validatePassword)
	v.RegisterTagNameFunc(jsonFieldName)
	return &echoValidator{v: v}
}

// Validate satisfies the echo.Validator interface.
func (ev *echoValidator) Validate(i any) error {
	if err := ev.v.Struct(i); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fieldError(fe))
			}
			return fmt.Errorf("%s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// validatePassword requires 8 to 72 bytes and at least one digit or
// non-alphanumeric character.
func validatePassword(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if len(p) < passwordMinLen || len(p) > passwordMaxLen {
		return false
	}
	for _, r := range p {
		if unicode.IsDigit(r) || !(unicode.IsLetter(r) || unicode.IsSpace(r)) {
			return true
		}
	}
	return false
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// fieldError converts a single ValidationError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "password":
		return fmt.Sprintf("%s must be %d-%d characters and contain a digit or special character",
			field, passwordMinLen, passwordMaxLen)
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
