package supervise

import "fmt"

// startFailedError signals that a unit did not come up within the settle
// window after its start command was issued.
type startFailedError struct {
	unit   UnitName
	detail string
}

func (e startFailedError) Error() string {
	return fmt.Sprintf("start failed for %s: %s", e.unit, e.detail)
}

// IsStartFailed reports whether err is a failed unit start.
func IsStartFailed(err error) bool {
	_, ok := err.(startFailedError)
	return ok
}

// stopFailedError signals that a unit was still running after the stop
// grace period.
type stopFailedError struct {
	unit   UnitName
	detail string
}

func (e stopFailedError) Error() string {
	return fmt.Sprintf("stop failed for %s: %s", e.unit, e.detail)
}

// IsStopFailed reports whether err is a failed unit stop.
func IsStopFailed(err error) bool {
	_, ok := err.(stopFailedError)
	return ok
}

// indeterminateError signals that detection could not settle on Running or
// Stopped; the supervisor surfaces this rather than guessing.
type indeterminateError struct {
	unit  UnitName
	cause error
}

func (e indeterminateError) Error() string {
	return fmt.Sprintf("state of %s is indeterminate: %v", e.unit, e.cause)
}

func (e indeterminateError) Unwrap() error { return e.cause }

// IsIndeterminate reports whether err means the unit state is unknown.
func IsIndeterminate(err error) bool {
	_, ok := err.(indeterminateError)
	return ok
}
