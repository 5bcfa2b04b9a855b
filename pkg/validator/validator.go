// Package validator runs go-playground struct tags and turns failures into
// per-field, human readable messages keyed by JSON name.
package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidationError is one failed tag on one field.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

var messages = map[string]func(param string) string{
	"required": fixed("This field is required."),
	"email":    fixed("Enter a valid email address."),
	"url":      fixed("Enter a valid URL."),
	"fqdn":     fixed("Enter a valid domain name."),
	"uuid":     fixed("Must be a valid UUID."),
	"uuid4":    fixed("Must be a valid UUID."),
	"slug":     fixed("Enter a valid slug consisting of lowercase letters, numbers or hyphens."),
	"timezone": fixed("Enter a valid IANA timezone."),
	"hexcolor": fixed("Enter a valid hex color."),
	"min":      func(p string) string { return "Ensure this field has at least " + p + " characters." },
	"max":      func(p string) string { return "Ensure this field has no more than " + p + " characters." },
	"len":      func(p string) string { return "Ensure this field has exactly " + p + " characters." },
	"gt":       func(p string) string { return "Ensure this value is greater than " + p + "." },
	"gte":      func(p string) string { return "Ensure this value is greater than or equal to " + p + "." },
	"lte":      func(p string) string { return "Ensure this value is less than or equal to " + p + "." },
	"oneof":    func(p string) string { return "Must be one of: " + strings.ReplaceAll(p, " ", ", ") + "." },
}

func fixed(msg string) func(string) string { return func(string) string { return msg } }

func (v ValidationError) Message() string {
	if render, ok := messages[v.Tag]; ok {
		return render(v.Param)
	}
	return "Failed validation: " + v.rule() + "."
}

func (v ValidationError) rule() string {
	if v.Param == "" {
		return v.Tag
	}
	return v.Tag + "=" + v.Param
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, failure := range v {
		parts[i] = failure.Field + " failed on " + failure.rule()
	}
	return strings.Join(parts, "; ")
}

// Fields groups failure messages by field name.
func (v ValidationErrors) Fields() map[string][]string {
	out := make(map[string][]string, len(v))
	for _, failure := range v {
		out[failure.Field] = append(out[failure.Field], failure.Message())
	}
	return out
}

// ValidateStruct checks s against its validate tags. Tag failures come back
// as ValidationErrors; anything else (a non-struct, say) is returned as is.
func ValidateStruct(s any) error {
	err := engine().Struct(s)
	var failed validator.ValidationErrors
	if !errors.As(err, &failed) {
		return err
	}
	out := make(ValidationErrors, len(failed))
	for i, fe := range failed {
		out[i] = ValidationError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
	}
	return out
}

var engine = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonName)
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		if name == "" {
			return false
		}
		_, err := time.LoadLocation(name)
		return err == nil
	})
	return v
})

// jsonName reports fields by their JSON key, falling back to the Go name.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}
