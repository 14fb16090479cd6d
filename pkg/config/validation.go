package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var unitNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// newValidator returns a validator with the registry rules registered.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("unitname", func(fl validator.FieldLevel) bool {
		return unitNamePattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		arg := sl.Current().Interface().(ArgConfig)
		if arg.forms() != 1 {
			sl.ReportError(arg, "Args", "Args", "oneform", "")
		}
		if arg.DependsOn != "" && !unitNamePattern.MatchString(arg.DependsOn) {
			sl.ReportError(arg.DependsOn, "DependsOn", "DependsOn", "unitname", "")
		}
	}, ArgConfig{})
	return v
}

// convertValidatorErrors maps validator failures to ValidationErrors.
func convertValidatorErrors(source string, err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{File: source, Message: err.Error(), Severity: "error"}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			File:     source,
			Path:     fe.Namespace(),
			Message:  describeTag(fe),
			Severity: "error",
		})
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "unitname":
		return fmt.Sprintf("%q is not a valid unit name (letters, digits, '_', '.', '-'; not starting with a digit)", fe.Value())
	case "oneform":
		return "argument must have exactly one of value, var or dependsOn"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
