package user

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"
)

func init() {
	_ = core.Validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, roleTag, roleText)
}

func roleValidation(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case Role:
		return v.Valid()
	case string:
		return Role(v).Valid()
	}
	return false
}
