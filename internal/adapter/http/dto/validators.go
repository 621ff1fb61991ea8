package dto

import (
	"html"
	"reflect"
	"regexp"
	"strings"

	"offline-wallet/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)
	pinRe        = regexp.MustCompile(`^[0-9]{4,12}$`)
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("money", validateMoney)
		_ = v.RegisterValidation("pin", validatePin)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// validateMoney accepts decimal strings with at most two fraction digits.
// Sign is checked by the engine so non-positive amounts get their own error.
func validateMoney(fl validator.FieldLevel) bool {
	_, err := domain.ParseAmount(fl.Field().String())
	return err == nil
}

// validatePin checks the shape only; the configured length policy is the
// PIN verifier's business.
func validatePin(fl validator.FieldLevel) bool {
	return pinRe.MatchString(fl.Field().String())
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			if elem := f.Elem(); elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
