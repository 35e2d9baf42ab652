package configutil

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}
	parts := make([]string, 0, len(e))
	for _, ve := range e {
		parts = append(parts, ve.Field)
	}
	return fmt.Sprintf("multiple validation errors: %d errors found (%s)", len(e), strings.Join(parts, ", "))
}

// Validator provides configuration validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

func (v *Validator) add(field, message string) *Validator {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
	return v
}

// RequiredString validates that a string field is not empty
func (v *Validator) RequiredString(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.add(field, "is required and cannot be empty")
	}
	return v
}

// RequiredInt validates that an integer field is greater than zero
func (v *Validator) RequiredInt(field string, value int) *Validator {
	if value <= 0 {
		return v.add(field, "must be greater than zero")
	}
	return v
}

// IntRange validates that an integer field is within a specific range
func (v *Validator) IntRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		return v.add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
	return v
}

// FloatRange validates that a float field is within a specific range
func (v *Validator) FloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		return v.add(field, fmt.Sprintf("must be between %g and %g", min, max))
	}
	return v
}

// RequiredDuration validates that a duration field is positive
func (v *Validator) RequiredDuration(field string, value time.Duration) *Validator {
	if value <= 0 {
		return v.add(field, "must be a positive duration")
	}
	return v
}

// NonNegativeDuration validates that a duration is zero or positive.
// Zero is commonly used to mean "no limit".
func (v *Validator) NonNegativeDuration(field string, value time.Duration) *Validator {
	if value < 0 {
		return v.add(field, "must not be negative")
	}
	return v
}

// DurationRange validates that a duration field is within a specific range
func (v *Validator) DurationRange(field string, value, min, max time.Duration) *Validator {
	if value < min || value > max {
		return v.add(field, fmt.Sprintf("must be between %v and %v", min, max))
	}
	return v
}

// DurationOrder validates that lo does not exceed hi
func (v *Validator) DurationOrder(field string, lo, hi time.Duration) *Validator {
	if lo > hi {
		return v.add(field, fmt.Sprintf("lower bound %v exceeds upper bound %v", lo, hi))
	}
	return v
}

// OneOf validates that a string field is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return v
		}
	}
	return v.add(field, fmt.Sprintf("must be one of: %v", allowed))
}

// ValidateURL validates that a string is an HTTP or HTTPS URL. Empty values pass.
func (v *Validator) ValidateURL(field, value string) *Validator {
	return v.ValidateURLScheme(field, value, "http", "https")
}

// ValidateURLScheme validates that a non-empty string is a URL with one of the schemes
func (v *Validator) ValidateURLScheme(field, value string, schemes ...string) *Validator {
	if value == "" {
		return v
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return v.add(field, "must be a valid URL")
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return v
		}
	}
	return v.add(field, fmt.Sprintf("must use one of the schemes: %v", schemes))
}

// ValidateFilePath validates that a file path is not empty
func (v *Validator) ValidateFilePath(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.add(field, "file path cannot be empty")
	}
	return v
}

// Result returns validation errors if any exist
func (v *Validator) Result() error {
	if len(v.errors) == 0 {
		return nil
	}
	return ValidationErrors(v.errors)
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// ErrorCount returns the number of validation errors
func (v *Validator) ErrorCount() int {
	return len(v.errors)
}
