package catalog

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/eminingcampus/campus/core"
)

var (
	levelTag  = "level"
	levelText = "level must be one of beginner, intermediate or advanced"
)

// InitValidators registers the catalog validators on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(levelTag, levelValidation)
	core.RegisterCustomTranslation(validate, translator, levelTag, levelText)
}

func levelValidation(fl validator.FieldLevel) bool {
	level := fl.Field().String()
	for _, l := range AllLevels {
		if l == level {
			return true
		}
	}
	return false
}
