// Package validation checks form payloads before they are sent upstream and
// reports failures as apperr.ValidationError.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/consult/consult/internal/platform/apperr"
	"github.com/consult/consult/pkg/kst"
)

// Messager lets a form override the message of a failing rule. Keys are
// "<json field>.<tag>" or "<json field>".
type Messager interface {
	ValidationMessages() map[string]string
}

var validate = newValidator()

var defaultMessages = map[string]string{
	"required": "필수 입력 항목입니다",
	"email":    "이메일 형식이 올바르지 않습니다",
	"ymd":      "YYYY-MM-DD 형식",
	"hhmm":     "HH:MM 형식",
	"oneof":    "허용되지 않는 값입니다",
	"min":      "값이 너무 작습니다",
	"max":      "값이 너무 큽니다",
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("ymd", func(fl validator.FieldLevel) bool {
		return kst.IsValidDate(fl.Field().String())
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return kst.IsValidTime(fl.Field().String())
	})
	return v
}

// Struct validates s and returns a *apperr.ValidationError describing every
// failing field, or nil.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var custom map[string]string
	if m, ok := s.(Messager); ok {
		custom = m.ValidationMessages()
	}

	out := &apperr.ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		field := fe.Field()
		if _, seen := out.Fields[field]; seen {
			continue
		}
		out.Fields[field] = message(field, fe.Tag(), custom)
	}
	return out
}

func message(field, tag string, custom map[string]string) string {
	if msg, ok := custom[field+"."+tag]; ok {
		return msg
	}
	if msg, ok := custom[field]; ok {
		return msg
	}
	if msg, ok := defaultMessages[tag]; ok {
		return msg
	}
	return "유효하지 않은 값입니다"
}
