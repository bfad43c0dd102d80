package ports

import "fmt"

// rangeExhaustedError signals that no port in the scanned range was free.
type rangeExhaustedError struct{ low, high int }

func (e rangeExhaustedError) Error() string {
	return fmt.Sprintf("no free port in range [%d, %d]", e.low, e.high)
}

// IsRangeExhausted reports whether err means the whole range was busy.
func IsRangeExhausted(err error) bool {
	_, ok := err.(rangeExhaustedError)
	return ok
}

// bindExhaustedError signals that every bind attempt, including negotiated
// fallbacks, failed.
type bindExhaustedError struct {
	attempts int
	last     error
}

func (e bindExhaustedError) Error() string {
	return fmt.Sprintf("could not bind a port after %d attempts: %v", e.attempts, e.last)
}

func (e bindExhaustedError) Unwrap() error { return e.last }

// IsBindExhausted reports whether err means bind retries were used up.
func IsBindExhausted(err error) bool {
	_, ok := err.(bindExhaustedError)
	return ok
}
