package core

import (
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	Validate   = validator.New()
	Translator = NewTranslator()
)

func init() {
	InitValidators(Validate, Translator)
}

var (
	// custom validation tags & texts
	filenameTag  = "filename"
	filenameText = "invalid file name"

	uuidListTag  = "ids"
	uuidListText = "contains invalid identifiers"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(filenameTag, filenameValidation)
	RegisterCustomTranslation(validate, translator, filenameTag, filenameText)

	_ = validate.RegisterValidation(uuidListTag, uuidListValidation)
	RegisterCustomTranslation(validate, translator, uuidListTag, uuidListText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// ValidateStruct validates s and converts failures into a ValidationError keyed by JSON field names.
func ValidateStruct(s interface{}) error {
	err := Validate.Struct(s)
	if err == nil {
		return nil
	}
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	flds := make([]FieldError, 0, len(vErrs))
	for _, vErr := range vErrs {
		flds = append(flds, FieldError{Field: vErr.Field(), Error: vErr.Translate(Translator)})
	}
	return NewValidationError(nil, flds...)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// filenameValidation rejects names carrying directory components.
func filenameValidation(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return true
	}
	return filepath.Base(name) == name && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// uuidListValidation checks that every element of a []string is a UUID.
func uuidListValidation(fl validator.FieldLevel) bool {
	ids, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, id := range ids {
		if !IsID(id) {
			return false
		}
	}
	return true
}
