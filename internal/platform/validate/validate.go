// Package validate holds the field checks shared by request models. Struct
// checks read `validate` tags; every failure is an apperr validation error
// naming the offending field by its json or query name.
package validate

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/rehab/rehab/internal/platform/apperr"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(fieldName)
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		instance = v
	})
	return instance
}

func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "query", "form"} {
		name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

// Struct checks the `validate` tags of v and reports the first failing field
// in declaration order.
func Struct(v interface{}) error {
	err := engine().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return describe(verrs[0].Field(), verrs[0])
	}
	return apperr.Validation("%v", err)
}

func check(field string, value interface{}, tag string) error {
	err := engine().Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return describe(field, verrs[0])
	}
	return apperr.Validation("%s: %v", field, err)
}

func describe(field string, fe validator.FieldError) error {
	switch fe.Tag() {
	case "required", "notblank":
		return apperr.Validation("%s is required", field)
	case "email":
		return apperr.Validation("%s: value is not a valid email address", field)
	case "oneof":
		allowed := strings.Fields(fe.Param())
		for i, a := range allowed {
			allowed[i] = "'" + a + "'"
		}
		return apperr.Validation("%s: unexpected value %q; permitted: %s", field, fe.Value(), strings.Join(allowed, ", "))
	case "gte", "min":
		return apperr.Validation("%s must be at least %s", field, fe.Param())
	}
	return apperr.Validation("%s failed the %q check", field, fe.Tag())
}

// Required fails when v is empty after trimming.
func Required(field, v string) error {
	return check(field, v, "notblank")
}

// Email fails unless v is a bare address such as "a@b.com" whose domain has
// at least one dot. Display-name forms like "A <a@b.com>" are rejected.
func Email(field, v string) error {
	return check(field, v, "notblank,email")
}

// OneOf fails unless v equals one of allowed. Allowed values must not
// contain spaces.
func OneOf(field, v string, allowed ...string) error {
	return check(field, v, "oneof="+strings.Join(allowed, " "))
}

// First returns the first non-nil error.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
