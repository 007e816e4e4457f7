package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

func newValidator() (*validator.Validate, ut.Translator, error) {
	validate := validator.New()

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, fmt.Errorf("failed to register default translations: %w", err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := validate.RegisterValidation("ascending", isAscendingDurations); err != nil {
		return nil, nil, fmt.Errorf("failed to register ascending validation: %w", err)
	}
	if err := validate.RegisterTranslation("ascending", trans, func(ut ut.Translator) error {
		return ut.Add("ascending", "{0} must be in strictly ascending order", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("ascending", strings.TrimPrefix(fe.Namespace(), "Config."))
		return t
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to register ascending translation: %w", err)
	}

	return validate, trans, nil
}

// isAscendingDurations reports whether a step list grows strictly.
func isAscendingDurations(fl validator.FieldLevel) bool {
	steps, ok := fl.Field().Interface().([]time.Duration)
	if !ok {
		return false
	}
	for i := 1; i < len(steps); i++ {
		if steps[i] <= steps[i-1] {
			return false
		}
	}
	return true
}
