package marshal

import (
	"errors"
	"fmt"
)

// ErrDomain matches every error attributable to a specific foreign class and
// field, as opposed to boundary failures and cache misses.
var ErrDomain = errors.New("domain conversion failed")

var errNotObject = errors.New("expected a JSON object")

// FieldCannotBeNullError is returned when a required field is null.
type FieldCannotBeNullError struct {
	Class string
	Field string
}

func (e *FieldCannotBeNullError) Error() string {
	return fmt.Sprintf("%s.%s cannot be null", SimpleName(e.Class), e.Field)
}

func (e *FieldCannotBeNullError) Is(target error) bool { return target == ErrDomain }

// NullListElementError is returned when a list holds a null element.
type NullListElementError struct {
	Class string
	Field string
	Index int
}

func (e *NullListElementError) Error() string {
	return fmt.Sprintf("%s.%s[%d] cannot be null", SimpleName(e.Class), e.Field, e.Index)
}

func (e *NullListElementError) Is(target error) bool { return target == ErrDomain }

// UnknownEnumValueError is returned when an enum constant is not in its table.
type UnknownEnumValueError struct {
	Enum  string
	Value string
}

func (e *UnknownEnumValueError) Error() string {
	return fmt.Sprintf("unknown %s value: %q", e.Enum, e.Value)
}

func (e *UnknownEnumValueError) Is(target error) bool { return target == ErrDomain }

// StructuredDataError is returned when a string-encoded payload fails to parse.
type StructuredDataError struct {
	What string
	Err  error
}

func (e *StructuredDataError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.What, e.Err)
}

func (e *StructuredDataError) Unwrap() error { return e.Err }

func (e *StructuredDataError) Is(target error) bool { return target == ErrDomain }

// ConfigError is returned when fields are individually valid but inconsistent
// with each other.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Message
}

func (e *ConfigError) Is(target error) bool { return target == ErrDomain }

// IsDomain reports whether err is a domain conversion failure.
func IsDomain(err error) bool {
	return errors.Is(err, ErrDomain)
}

// IsFieldCannotBeNull reports whether err is a missing required field.
func IsFieldCannotBeNull(err error) bool {
	var target *FieldCannotBeNullError
	return errors.As(err, &target)
}

// IsConfigError reports whether err is a configuration consistency error.
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}
