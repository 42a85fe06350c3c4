package tokens

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken matches every token decoding or validation failure.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNoKey is returned when no key in the key set can verify a token.
	ErrNoKey = errors.New("no matching key")
)

// TokenError reports a failure to decode or validate one token.
type TokenError struct {
	Kind Kind
	Err  error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

func (e *TokenError) Is(target error) bool { return target == ErrInvalidToken }

// MissingClaimError is returned when a required claim is absent.
type MissingClaimError struct {
	Claim string
}

func (e *MissingClaimError) Error() string {
	return fmt.Sprintf("missing required claim %q", e.Claim)
}

// UnknownKindError is returned for a token name that is not an access, id or
// userinfo token.
type UnknownKindError struct {
	Name string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown token %q", e.Name)
}

// IsInvalid reports whether err is a token failure.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}

// IsMissingClaim reports whether err names a missing required claim.
func IsMissingClaim(err error) bool {
	var mc *MissingClaimError
	return errors.As(err, &mc)
}
