package validation

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Validator checks request DTOs and renders the first failure as a short message
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	once     sync.Once
	instance *Validator
)

// New returns the process-wide validator with english messages that use json field names
func New() *Validator {
	once.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		instance = &Validator{validate: v, translator: trans}
	})
	return instance
}

// Struct validates s, returning nil or an error whose message names the first bad field
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		return &FieldError{Field: verrs[0].Field(), Message: verrs[0].Translate(v.translator)}
	}
	return err
}

// FieldError describes the first failed rule of a request
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}
