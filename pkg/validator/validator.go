package validator

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/hospital-api/pkg/errors"
)

var registerOnce sync.Once

// Register makes gin's validator report fields by their json names.
func Register() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(jsonTagName)
		}
	})
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

var messages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email",
	"oneof":    "must be one of [%s]",
	"gt":       "must be greater than %s",
	"min":      "must be at least %s",
	"max":      "must be at most %s",
}

// Describe renders a binding error as a single human readable line.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, e := range verrs {
			parts = append(parts, describeField(e))
		}
		return strings.Join(parts, "; ")
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stderrors.As(err, &syntaxErr):
		return "malformed JSON body"
	case stderrors.As(err, &typeErr):
		return fmt.Sprintf("%s has the wrong type", typeErr.Field)
	}
	return err.Error()
}

func describeField(e validator.FieldError) string {
	tmpl, ok := messages[e.Tag()]
	if !ok {
		return fmt.Sprintf("%s failed %s", e.Field(), e.Tag())
	}
	if strings.Contains(tmpl, "%s") {
		return e.Field() + " " + fmt.Sprintf(tmpl, e.Param())
	}
	return e.Field() + " " + tmpl
}

// BindError wraps a gin binding failure as InvalidInput.
func BindError(err error) *errors.AppError {
	return errors.NewInvalidInput(Describe(err), err)
}
