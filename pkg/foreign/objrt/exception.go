package objrt

import "fmt"

// Exception is a foreign exception left pending when a call returned.
type Exception struct {
	Class   string
	Message string
}

// Error implements the error interface.
func (e *Exception) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}
