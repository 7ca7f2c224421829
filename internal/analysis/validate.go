package analysis

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-openapi/strfmt"
	"github.com/go-playground/validator/v10"
)

type ValidationRule struct {
	Rule func(v *validator.Validate)
}

// Validator wraps validator.Validate and turns its errors into a ValidationError.
type Validator struct {
	validator *validator.Validate
}

func NewValidator(rules ...ValidationRule) *Validator {
	v := &Validator{validator: validator.New(validator.WithRequiredStructEnabled())}
	v.validator.RegisterTagNameFunc(jsonFieldName)
	for _, r := range rules {
		r.Rule(v.validator)
	}
	return v
}

func (v *Validator) Struct(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: trimNamespace(fe.Namespace()), Message: describe(fe)})
	}
	return NewValidationError(fields...)
}

var (
	defaultValidator     *Validator
	defaultValidatorOnce sync.Once
)

// Validate checks the payload shape and that the params match the job type.
func Validate(t JobType, data JobData) error {
	defaultValidatorOnce.Do(func() {
		defaultValidator = NewValidator(NewParamsValidationRules()...)
	})

	if data.Params == nil {
		return NewValidationError(FieldError{Field: "params", Message: "is required"})
	}
	if data.Params.JobType() != t {
		return NewValidationError(FieldError{
			Field:   "params",
			Message: fmt.Sprintf("%s params supplied for a %s job", data.Params.JobType(), t),
		})
	}
	if err := defaultValidator.Struct(data); err != nil {
		return err
	}
	return defaultValidator.Struct(data.Params)
}

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewParamsValidationRules() []ValidationRule {
	return []ValidationRule{
		{Rule: registerFn("weburl", webURLValidator)},
		{Rule: registerFn("domain", domainValidator)},
		{Rule: registerFn("urlpath", urlPathValidator)},
	}
}

func webURLValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	u, err := url.Parse(val)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return validHost(u.Hostname())
}

func domainValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	if strings.Contains(val, "/") || strings.Contains(val, ":") {
		return false
	}
	return strings.Contains(val, ".") && strfmt.IsHostname(val)
}

func urlPathValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	if !strings.HasPrefix(val, "/") || strings.HasPrefix(val, "//") || strings.ContainsAny(val, " \t\n") {
		return false
	}
	_, err := url.ParseRequestURI(val)
	return err == nil
}

func validHost(host string) bool {
	if host == "" {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	return strfmt.IsHostname(host)
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// trimNamespace drops the struct name so "SEOHealthParams.pages[0]" reads "pages[0]".
func trimNamespace(ns string) string {
	if _, rest, found := strings.Cut(ns, "."); found {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "unique":
		return "must not contain duplicates"
	case "weburl":
		return "must be an absolute http(s) URL"
	case "domain":
		return "must be a bare domain name"
	case "urlpath":
		return "must be a path starting with /"
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}
