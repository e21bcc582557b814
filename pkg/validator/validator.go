package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockPattern = regexp.MustCompile(`^(0?[1-9]|1[0-2]):[0-5]\d\s?(?i:am|pm)$|^([01]?\d|2[0-3]):[0-5]\d$`)
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateField(field string, value interface{}, rules string) error
}

type structValidator struct {
	v *validator.Validate
}

// New returns a validator with the scheduling tags registered:
// "date" (YYYY-MM-DD) and "clock" (09:30, 9:30 AM).
func New() Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	RegisterTags(v)
	return &structValidator{v: v}
}

// RegisterTags adds the scheduling tags to an existing engine, such as the
// one gin binds requests with
func RegisterTags(v *validator.Validate) {
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		return datePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
}

// Engine exposes the underlying validator for gin binding registration
func Engine(v Validator) *validator.Validate {
	if sv, ok := v.(*structValidator); ok {
		return sv.v
	}
	return nil
}

func (s *structValidator) Validate(obj interface{}) error {
	if err := s.v.Struct(obj); err != nil {
		return Translate(err)
	}
	return nil
}

func (s *structValidator) ValidateField(field string, value interface{}, rules string) error {
	if err := s.v.Var(value, rules); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return fmt.Errorf("%s failed on %s", field, verrs[0].Tag())
		}
		return err
	}
	return nil
}

// Translate turns validator errors into one readable message
func Translate(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
