package common

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// Validator collects field-level validation errors
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Error returns a combined error, or nil when the validator is clean
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, v.ErrorMessage())
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value any) *ValidationError

var numberCleaner = regexp.MustCompile(`[,\s]|(?i)(ft|feet|usft|m|deg|°)\.?$`)

// ParseNumber parses a numeric string the way values appear on survey sheets:
// thousands separators, surrounding spaces and a trailing unit are ignored.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	cleaned := numberCleaner.ReplaceAllString(s, "")
	cleaned = strings.TrimPrefix(cleaned, "+")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func numericValue(value any) (float64, bool, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false, true
	case float64:
		return v, true, true
	case *float64:
		if v == nil {
			return 0, false, true
		}
		return *v, true, true
	case string:
		f, ok := ParseNumber(v)
		return f, true, ok
	case *string:
		if v == nil {
			return 0, false, true
		}
		f, ok := ParseNumber(*v)
		return f, true, ok
	}
	return 0, true, false
}

// Numeric requires a present value to parse as a number. Absent values pass.
func Numeric(fieldName string, value any) *ValidationError {
	if _, present, ok := numericValue(value); present && !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be numeric"}
	}
	return nil
}

// Range builds a rule requiring a present numeric value to lie in [min,max].
func Range(min, max float64) ValidationRule {
	return rangeRule(min, max, false)
}

// RangeOpen builds a rule requiring a present numeric value to lie in [min,max).
func RangeOpen(min, max float64) ValidationRule {
	return rangeRule(min, max, true)
}

func rangeRule(min, max float64, openMax bool) ValidationRule {
	return func(fieldName string, value any) *ValidationError {
		f, present, ok := numericValue(value)
		if !present || !ok {
			return nil
		}
		if f < min || f > max || (openMax && f == max) {
			closing := "]"
			if openMax {
				closing = ")"
			}
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("must be within [%g,%g%s", min, max, closing),
			}
		}
		return nil
	}
}

var hasDigit = regexp.MustCompile(`\d`)

// WellIdentifier requires a present identifier to contain at least one digit.
func WellIdentifier(fieldName string, value any) *ValidationError {
	str, ok := value.(string)
	if !ok || str == "" {
		return nil
	}
	if !hasDigit.MatchString(str) {
		return &ValidationError{Field: fieldName, Value: value, Message: "must contain an API/UWI number"}
	}
	return nil
}
