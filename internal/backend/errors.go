package backend

import "fmt"

// unreachableError signals a transport-level failure reaching the engine.
type unreachableError struct {
	url   string
	cause error
}

func (e unreachableError) Error() string {
	return fmt.Sprintf("backend unreachable at %s: %v", e.url, e.cause)
}

func (e unreachableError) Unwrap() error { return e.cause }

// IsUnreachable reports whether err means the engine could not be reached.
func IsUnreachable(err error) bool {
	_, ok := err.(unreachableError)
	return ok
}

// statusError signals a non-200 answer from the engine.
type statusError struct {
	status int
	body   string
}

func (e statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("backend returned status %d", e.status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.status, e.body)
}

// StatusOf returns the engine's HTTP status carried by err, or 0 when err is
// not a status error.
func StatusOf(err error) int {
	if se, ok := err.(statusError); ok {
		return se.status
	}
	return 0
}
