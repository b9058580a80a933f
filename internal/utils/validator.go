package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	soundcloudURLRegex = regexp.MustCompile(`^(https?://)?(www\.|api\.|m\.)?soundcloud\.com/.+$`)

	validationErrorMessages = map[string]string{
		"required":       "This field is required",
		"min":            "Value must be greater than or equal to %s",
		"max":            "Value must be less than or equal to %s",
		"oneof":          "Must be one of: %s",
		"numeric":        "Must be numeric",
		"url":            "Must be a valid URL",
		"locale":         "Must be a valid BCP 47 language tag",
		"soundcloud_url": "Must be a valid SoundCloud URL",
	}
)

func init() {
	validate = validator.New()

	// Report json field names instead of Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("locale", validateLocale)
	_ = validate.RegisterValidation("soundcloud_url", validateSoundCloudURL)
}

// Validate performs validation on the given struct and returns validation errors.
func Validate(s any) error {
	return validate.Struct(s)
}

// ValidateVar validates a single variable with the given tag and returns errors.
func ValidateVar(field any, tag string) error {
	return validate.Var(field, tag)
}

// FormatValidationErrors formats validation errors into a field -> message map.
func FormatValidationErrors(err error) map[string]string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}

	out := make(map[string]string, len(errs))
	for _, e := range errs {
		message, ok := validationErrorMessages[e.Tag()]
		if !ok {
			message = "Invalid value"
		}
		if param := e.Param(); param != "" && strings.Contains(message, "%s") {
			message = strings.Replace(message, "%s", param, 1)
		}
		out[e.Field()] = message
	}
	return out
}

// validateLocale accepts empty strings and anything x/text can parse as a language tag.
func validateLocale(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := language.Parse(value)
	return err == nil
}

func validateSoundCloudURL(fl validator.FieldLevel) bool {
	return soundcloudURLRegex.MatchString(fl.Field().String())
}

// GetValidator returns the validator instance.
func GetValidator() *validator.Validate {
	return validate
}
