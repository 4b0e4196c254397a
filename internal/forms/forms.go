// Package forms validates raw submitted fields before they reach the data layer.
//
// Form structs carry both `form` tags (for gin binding) and `binding` tags,
// the tag name gin's default validator reads. The same rules are evaluated
// here with a package-level validator so services can validate input that did
// not come through an HTTP request.
package forms

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NonFieldKey collects errors that do not belong to a single field.
const NonFieldKey = "__all__"

type LoginForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

type SignupForm struct {
	Username  string `form:"username" binding:"required,max=30,username"`
	Email     string `form:"email" binding:"required,email,max=254"`
	Password1 string `form:"password1" binding:"required"`
	Password2 string `form:"password2" binding:"required,eqfield=Password1"`
}

type RibbitForm struct {
	Content string `form:"content" binding:"required,max=140"`
	NextURL string `form:"next_url"`
}

type FollowForm struct {
	Follow string `form:"follow" binding:"required"`
}

var usernameRe = regexp.MustCompile(`^[\w.@+-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	Register(v)
	return v
}

// Register installs the custom rules on v. It is called for the package
// validator and for gin's binding engine.
func Register(v *validator.Validate) {
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
}

// ValidationError carries field-level and form-level messages for re-rendering a form.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Add appends msg to the errors of field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Field returns the messages recorded for field.
func (e *ValidationError) Field(field string) []string {
	if e == nil {
		return nil
	}
	return e.Fields[field]
}

// NonField returns the form-level messages.
func (e *ValidationError) NonField() []string {
	return e.Field(NonFieldKey)
}

// NewNonFieldError builds a ValidationError with a single form-level message.
func NewNonFieldError(msg string) *ValidationError {
	e := &ValidationError{}
	e.Add(NonFieldKey, msg)
	return e
}

// NewFieldError builds a ValidationError with a single message for field.
func NewFieldError(field, msg string) *ValidationError {
	e := &ValidationError{}
	e.Add(field, msg)
	return e
}

// Validate checks form against its binding rules. It returns nil when the form is valid.
func Validate(form any) *ValidationError {
	return FromBindError(validate.Struct(form))
}

// ValidateContent checks ribbit content on its own.
func ValidateContent(content string) *ValidationError {
	return Validate(RibbitForm{Content: content})
}

// FromBindError converts a binding or validation error into a ValidationError.
// Errors that are not validator errors (malformed bodies) become form-level messages.
func FromBindError(err error) *ValidationError {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewNonFieldError("The submitted form could not be read.")
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		field := fieldName(fe)
		out.Add(field, message(fe))
	}
	return out
}

// fieldName maps a struct field back to its form name.
func fieldName(fe validator.FieldError) string {
	switch fe.StructField() {
	case "NextURL":
		return "next_url"
	case "Password1":
		return "password1"
	case "Password2":
		return "password2"
	default:
		return strings.ToLower(fe.StructField())
	}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters (it has %d).", fe.Param(), len([]rune(fe.Value().(string))))
	case "email":
		return "Enter a valid email address."
	case "username":
		return "Enter a valid username. This value may contain only letters, numbers and @/./+/-/_ characters."
	case "eqfield":
		return "The two password fields didn't match."
	default:
		return "Enter a valid value."
	}
}
