// Package validation checks user-submitted form fields and reports
// per-field messages.
package validation

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ezvendo/portal/internal/common"
)

const (
	MinPasswordLength = 8

	MsgInvalidEmail     = "Invalid email format"
	MsgPasswordTooShort = "Password must be at least 8 characters"
	MsgPasswordMismatch = "Passwords do not match"
	MsgFixErrors        = "Please correct the errors marked in red before proceeding."
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Errors maps a form field name to its message. It matches common.ErrValidation.
type Errors map[string]string

func (e Errors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e Errors) Is(target error) bool { return target == common.ErrValidation }

// Err returns nil when no field failed.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// DisplayName turns a camelCase field name into its label: confirmPassword
// becomes "Confirm Password".
func DisplayName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i == 0 {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Required records "<Field Name> required" when value is blank.
func (e Errors) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		e[field] = DisplayName(field) + " required"
		return false
	}
	return true
}

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Registration validates the sign-up form fields.
func Registration(firstName, lastName, email, password, confirmPassword string) Errors {
	errs := Errors{}
	errs.Required("firstName", firstName)
	errs.Required("lastName", lastName)
	if errs.Required("email", email) && !ValidEmail(strings.TrimSpace(email)) {
		errs["email"] = MsgInvalidEmail
	}
	if errs.Required("password", password) && len(password) < MinPasswordLength {
		errs["password"] = MsgPasswordTooShort
	}
	if errs.Required("confirmPassword", confirmPassword) && confirmPassword != password {
		errs["confirmPassword"] = MsgPasswordMismatch
	}
	return errs
}
