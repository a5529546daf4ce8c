package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var timeframePattern = regexp.MustCompile(`^M[0-9]+$`)

// validate is the shared struct validator; it caches struct metadata and is safe for concurrent use
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("timeframe", func(fl validator.FieldLevel) bool {
		return timeframePattern.MatchString(fl.Field().String())
	})
	return v
}

// validateStruct runs tag validation and wraps failures in the given sentinel
func validateStruct(s interface{}, sentinel error) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", sentinel, describe(verrs))
		}
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
