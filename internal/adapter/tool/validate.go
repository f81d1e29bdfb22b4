package tool

import (
	"fmt"
	"strings"
)

// RequireField returns an error if the string value is empty.
func RequireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("'%s' is required", name)
	}
	return nil
}

// RequirePresent returns an error if a pointer field was not supplied.
func RequirePresent[T any](name string, value *T) error {
	if value == nil {
		return fmt.Errorf("'%s' is required", name)
	}
	return nil
}

// ValidatePositive checks that value is > 0.
func ValidatePositive(name string, value int) error {
	if value <= 0 {
		return fmt.Errorf("'%s' must be > 0", name)
	}
	return nil
}

// ValidateEnum checks that value is one of the allowed values.
// An empty value is allowed (treated as "not set").
func ValidateEnum(name, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (want: %s)", name, value, strings.Join(allowed, ", "))
}

// ValidateMaxLength checks that value does not exceed max bytes.
func ValidateMaxLength(name, value string, max int) error {
	if max > 0 && len(value) > max {
		return fmt.Errorf("%s exceeds maximum length of %d bytes", name, max)
	}
	return nil
}

// ValidateAll returns the first non-nil error from the given list.
func ValidateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
