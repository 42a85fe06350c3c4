package engine

import (
	"errors"
	"fmt"
)

// AuthorizeErrorType classifies where an authorization request failed.
type AuthorizeErrorType string

const (
	// ErrorTypeProcessTokens indicates a token could not be decoded or validated.
	ErrorTypeProcessTokens AuthorizeErrorType = "ProcessTokens"

	// ErrorTypeAccessTokenEntities indicates the workload entity could not be
	// built from the access token.
	ErrorTypeAccessTokenEntities AuthorizeErrorType = "AccessTokenEntities"

	// ErrorTypeCreateIDTokenEntity indicates the id token failed a trust check.
	ErrorTypeCreateIDTokenEntity AuthorizeErrorType = "CreateIdTokenEntity"

	// ErrorTypeCreateUserinfoTokenEntity indicates the userinfo token failed a
	// trust check.
	ErrorTypeCreateUserinfoTokenEntity AuthorizeErrorType = "CreateUserinfoTokenEntity"

	// ErrorTypeCreateUserEntity indicates the user entity could not be built.
	ErrorTypeCreateUserEntity AuthorizeErrorType = "CreateUserEntity"

	// ErrorTypeResourceEntity indicates the resource is malformed.
	ErrorTypeResourceEntity AuthorizeErrorType = "ResourceEntity"

	// ErrorTypeRoleEntity indicates a role could not be read.
	ErrorTypeRoleEntity AuthorizeErrorType = "RoleEntity"

	// ErrorTypeAction indicates the action is not a valid entity reference.
	ErrorTypeAction AuthorizeErrorType = "Action"

	// ErrorTypeCreateContext indicates the context is not a JSON object.
	ErrorTypeCreateContext AuthorizeErrorType = "CreateContext"

	// ErrorTypeCreateRequestWorkloadEntity indicates the workload principal is
	// required but was not built.
	ErrorTypeCreateRequestWorkloadEntity AuthorizeErrorType = "CreateRequestWorkloadEntity"

	// ErrorTypeCreateRequestUserEntity indicates the user principal is
	// required but was not built.
	ErrorTypeCreateRequestUserEntity AuthorizeErrorType = "CreateRequestUserEntity"

	// ErrorTypeEntities indicates the entity set could not be assembled.
	ErrorTypeEntities AuthorizeErrorType = "Entities"

	// ErrorTypePrincipalRule indicates the principal operator failed to evaluate.
	ErrorTypePrincipalRule AuthorizeErrorType = "PrincipalRule"
)

// AuthorizeError is a failed authorization request.
type AuthorizeError struct {
	// Type classifies the failure.
	Type AuthorizeErrorType `json:"type"`

	// Message describes the failure.
	Message string `json:"message"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AuthorizeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Message, e.Err.Error())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *AuthorizeError) Unwrap() error {
	return e.Err
}

// Is matches another *AuthorizeError of the same type.
func (e *AuthorizeError) Is(target error) bool {
	t, ok := target.(*AuthorizeError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

func newAuthorizeError(typ AuthorizeErrorType, message string, err error) *AuthorizeError {
	return &AuthorizeError{Type: typ, Message: message, Err: err}
}

// ErrorType returns the type of an authorization failure, or "" when err is
// not one.
func ErrorType(err error) AuthorizeErrorType {
	var e *AuthorizeError
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsAuthorizeError reports whether err is an authorization failure of typ.
func IsAuthorizeError(err error, typ AuthorizeErrorType) bool {
	return ErrorType(err) == typ
}

// ConfigError is a bootstrap configuration the engine cannot run with.
type ConfigError struct {
	// Component is the part of the engine that rejected the configuration.
	Component string `json:"component"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %s", e.Component, e.Err.Error())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a configuration failure.
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

// ErrClosed is returned by calls on a closed engine.
var ErrClosed = errors.New("engine closed")
