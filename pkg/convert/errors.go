package convert

import (
	"fmt"

	"github.com/openfroyo/cedarbridge/pkg/marshal"
)

// PrincipalCannotBeNullError is returned when the principal list of an unsigned
// request holds a null element.
type PrincipalCannotBeNullError struct {
	Index int
	Err   *marshal.NullListElementError
}

func (e *PrincipalCannotBeNullError) Error() string {
	return fmt.Sprintf("null principal at index %d in unsigned authorization request", e.Index)
}

func (e *PrincipalCannotBeNullError) Unwrap() error { return e.Err }

// TokenCannotBeNullError is returned when a named token of a signed request has
// no value.
type TokenCannotBeNullError struct {
	Name string
}

func (e *TokenCannotBeNullError) Error() string {
	return fmt.Sprintf("null value for token %q in authorization request", e.Name)
}

func (e *TokenCannotBeNullError) Is(target error) bool { return target == marshal.ErrDomain }

// MissingArgumentError is returned when an entry point receives a null object
// where the caller contract requires one.
type MissingArgumentError struct {
	Class string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("%s cannot be null", marshal.SimpleName(e.Class))
}

func (e *MissingArgumentError) Is(target error) bool { return target == marshal.ErrDomain }
