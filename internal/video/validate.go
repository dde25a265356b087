package video

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("voice", func(fl validator.FieldLevel) bool {
			return IsVoice(Voice(fl.Field().String()))
		})
		_ = v.RegisterValidation("mood", func(fl validator.FieldLevel) bool {
			return IsMood(MusicMood(fl.Field().String()))
		})
		validate = v
	})
	return validate
}

func IsVoice(v Voice) bool {
	for _, known := range Voices {
		if v == known {
			return true
		}
	}
	return false
}

func IsMood(m MusicMood) bool {
	for _, known := range Moods {
		if m == known {
			return true
		}
	}
	return false
}

// ValidateSubmission checks a submission before it is accepted. It returns a
// *ValidationError listing every rejected field.
func ValidateSubmission(scenes []SceneInput, cfg RenderConfig) error {
	var fields []FieldError
	if len(scenes) == 0 {
		fields = append(fields, FieldError{Field: "scenes", Message: "at least one scene is required"})
	}

	v := validatorInstance()
	for i := range scenes {
		if err := v.Struct(scenes[i]); err != nil {
			fields = append(fields, fieldErrors(fmt.Sprintf("scenes[%d]", i), err)...)
			continue
		}
		if strings.TrimSpace(scenes[i].Text) == "" {
			fields = append(fields, FieldError{Field: fmt.Sprintf("scenes[%d].text", i), Message: "is required"})
		}
	}

	if err := v.Struct(cfg); err != nil {
		fields = append(fields, fieldErrors("config", err)...)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func fieldErrors(prefix string, err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: prefix, Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   prefix + "." + fe.Field(),
			Message: describeTag(fe),
		})
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "oneof":
		return fmt.Sprintf("%q is not one of [%s]", fe.Value(), fe.Param())
	case "voice":
		return fmt.Sprintf("%q is not a known voice", fe.Value())
	case "mood":
		return fmt.Sprintf("%q is not a known music mood", fe.Value())
	case "gte", "lte":
		return fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
