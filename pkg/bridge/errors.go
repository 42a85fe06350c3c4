package bridge

import (
	"errors"
	"fmt"

	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/handles"
	"github.com/openfroyo/cedarbridge/pkg/marshal"
)

var (
	// ErrAlreadyInitialized is returned by a second InitCache.
	ErrAlreadyInitialized = errors.New("handle cache already initialized")

	// ErrEngine matches every failure of the decision engine.
	ErrEngine = errors.New("decision engine failed")

	// ErrInstance matches every failure to find or attach an engine instance.
	ErrInstance = errors.New("engine instance unavailable")
)

// InstanceNotFoundError is returned when a Cedarling object carries no live
// engine instance, either because construction failed or because it was
// already closed.
type InstanceNotFoundError struct {
	ID int64
}

func (e *InstanceNotFoundError) Error() string {
	if e.ID == 0 {
		return "no engine instance attached"
	}
	return fmt.Sprintf("engine instance %d not found", e.ID)
}

func (e *InstanceNotFoundError) Is(target error) bool { return target == ErrInstance }

// InstanceAttachedError is returned when CreateInstance runs on an object that
// already owns an instance.
type InstanceAttachedError struct {
	ID int64
}

func (e *InstanceAttachedError) Error() string {
	return fmt.Sprintf("engine instance %d already attached", e.ID)
}

func (e *InstanceAttachedError) Is(target error) bool { return target == ErrInstance }

// EngineError wraps an error returned by the decision engine.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return target == ErrEngine }

// IsBoundary reports whether err is a failure of a foreign call.
func IsBoundary(err error) bool {
	return foreign.IsCallFailure(err)
}

// IsCacheMiss reports whether err comes from a handle lookup or registration.
func IsCacheMiss(err error) bool {
	return handles.IsCacheMiss(err) || handles.IsRegistration(err)
}

// IsDomain reports whether err is attributable to a foreign class and field.
func IsDomain(err error) bool {
	return marshal.IsDomain(err)
}

// IsEngine reports whether err comes from the decision engine.
func IsEngine(err error) bool {
	return errors.Is(err, ErrEngine)
}

// IsInstance reports whether err is an instance lifecycle failure.
func IsInstance(err error) bool {
	return errors.Is(err, ErrInstance)
}

// Classify names the error class of err for metrics and spans.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case IsEngine(err):
		return "engine"
	case IsInstance(err):
		return "instance"
	case IsDomain(err):
		return "domain"
	case IsCacheMiss(err):
		return "cache_miss"
	case IsBoundary(err):
		return "boundary"
	default:
		return "unknown"
	}
}
