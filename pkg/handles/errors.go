package handles

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss matches every lookup failure. A miss means registration did
	// not run, or ran incompletely, before the lookup.
	ErrCacheMiss = errors.New("handle cache miss")

	// ErrRegistration matches every registration failure.
	ErrRegistration = errors.New("handle registration failed")
)

// ClassNotFoundError is returned when the foreign runtime cannot resolve a class.
type ClassNotFoundError struct {
	Class string
	Err   error
}

func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("class not found: %s: %v", e.Class, e.Err)
}

func (e *ClassNotFoundError) Unwrap() error { return e.Err }

func (e *ClassNotFoundError) Is(target error) bool { return target == ErrRegistration }

// MemberNotFoundError is returned when a method or static field cannot be
// resolved against its class.
type MemberNotFoundError struct {
	Class  string
	Member string
	Sig    string
	Static bool
	Err    error
}

func (e *MemberNotFoundError) Error() string {
	kind := "method"
	if e.Static {
		kind = "static field"
	}
	return fmt.Sprintf("%s not found: %s.%s %s: %v", kind, e.Class, e.Member, e.Sig, e.Err)
}

func (e *MemberNotFoundError) Unwrap() error { return e.Err }

func (e *MemberNotFoundError) Is(target error) bool { return target == ErrRegistration }

// DuplicateRegistrationError is returned when a key is registered twice.
type DuplicateRegistrationError struct {
	Cache string
	Key   string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("%s: %s already registered", e.Cache, e.Key)
}

func (e *DuplicateRegistrationError) Is(target error) bool { return target == ErrRegistration }

// CachedClassNotFoundError is returned by LookupClass for an unregistered class.
type CachedClassNotFoundError struct {
	Cache string
	Class string
}

func (e *CachedClassNotFoundError) Error() string {
	return fmt.Sprintf("%s: cached class not found: %s", e.Cache, e.Class)
}

func (e *CachedClassNotFoundError) Is(target error) bool { return target == ErrCacheMiss }

// CachedInstanceMethodNotFoundError is returned by LookupMethod for an
// unregistered method.
type CachedInstanceMethodNotFoundError struct {
	Cache  string
	Class  string
	Member string
}

func (e *CachedInstanceMethodNotFoundError) Error() string {
	return fmt.Sprintf("%s: cached instance method not found: %s.%s", e.Cache, e.Class, e.Member)
}

func (e *CachedInstanceMethodNotFoundError) Is(target error) bool { return target == ErrCacheMiss }

// CachedStaticFieldNotFoundError is returned by LookupStaticField for an
// unregistered field.
type CachedStaticFieldNotFoundError struct {
	Cache string
	Class string
	Field string
}

func (e *CachedStaticFieldNotFoundError) Error() string {
	return fmt.Sprintf("%s: cached static field not found: %s.%s", e.Cache, e.Class, e.Field)
}

func (e *CachedStaticFieldNotFoundError) Is(target error) bool { return target == ErrCacheMiss }

// IsCacheMiss reports whether err is a lookup failure.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// IsRegistration reports whether err is a registration failure.
func IsRegistration(err error) bool {
	return errors.Is(err, ErrRegistration)
}
