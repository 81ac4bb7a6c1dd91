package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindForm binds a urlencoded form into out. On failure it returns the
// per-field problems, keyed by form field name, for re-rendering the form.
func BindForm(ctx *gin.Context, out interface{}) (map[string]string, bool) {
	err := ctx.ShouldBindWith(out, binding.Form)

	if err == nil {
		return nil, true
	}

	fields := parseBindError(err, out)
	byName := make(map[string]string, len(fields))

	for _, f := range fields {
		if _, seen := byName[f.Field]; !seen {
			byName[f.Field] = f.Message
		}
	}

	return byName, false
}

func parseBindError(err error, out interface{}) []FieldError {
	rootType := baseStructType(out)

	// validator errors (struct bind tags)

	var validatorError validator.ValidationErrors

	if errors.As(err, &validatorError) {
		fields := make([]FieldError, 0, len(validatorError))

		for _, fieldError := range validatorError {
			rule := fieldError.Tag()
			param := fieldError.Param()

			fields = append(fields, FieldError{
				Field:   formNameFromValidatorError(rootType, fieldError),
				Rule:    rule,
				Param:   param,
				Message: validationMessage(rule, param),
			})
		}
		return fields
	}

	// a value that does not parse into its field type, e.g. chargeAmount=abc

	var numError *strconv.NumError

	if errors.As(err, &numError) {
		return []FieldError{{
			Field:   numericFieldName(rootType),
			Rule:    "type",
			Message: "must be a number",
		}}
	}

	// final fallback if the error could not be deciphered
	return []FieldError{{Field: "form", Rule: "invalid", Message: "could not read the submitted form"}}
}

func baseStructType(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)

	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t != nil && t.Kind() == reflect.Struct {
		return t
	}

	return nil
}

func formNameFromValidatorError(rootType reflect.Type, fieldError validator.FieldError) string {
	if rootType != nil {
		if sf, ok := rootType.FieldByName(fieldError.StructField()); ok {
			return formNameFromStructField(sf)
		}
	}

	return fieldError.Field()
}

// numericFieldName finds the first float or int field; forms here carry at
// most one.
func numericFieldName(rootType reflect.Type) string {
	if rootType == nil {
		return "form"
	}

	for i := 0; i < rootType.NumField(); i++ {
		sf := rootType.Field(i)
		switch sf.Type.Kind() {
		case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int32, reflect.Int64:
			return formNameFromStructField(sf)
		}
	}

	return "form"
}

func formNameFromStructField(sf reflect.StructField) string {
	tag := sf.Tag.Get("form")
	if tag == "" {
		return sf.Name
	}

	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return sf.Name
	}

	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + param + " characters"
	case "max":
		return "must be at most " + param + " characters"
	case "gt":
		return "must be greater than " + param
	case "gte":
		return "must be at least " + param
	case "lte":
		return "must be at most " + param
	case "len":
		return "must be exactly " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
