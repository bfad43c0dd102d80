package diag

import "fmt"

// benchmarkFailedError signals that the throughput probe could not complete
// a generation round-trip.
type benchmarkFailedError struct {
	cause error
}

func (e benchmarkFailedError) Error() string {
	return fmt.Sprintf("benchmark failed: %v", e.cause)
}

func (e benchmarkFailedError) Unwrap() error { return e.cause }

// IsBenchmarkFailed reports whether err means the benchmark round-trip
// failed, as opposed to the measured throughput merely being low.
func IsBenchmarkFailed(err error) bool {
	_, ok := err.(benchmarkFailedError)
	return ok
}

// driftError signals that the persisted gateway port no longer matches where
// the gateway actually answers. Drift is reported, never silently repaired.
type driftError struct {
	persisted int
	detail    string
}

func (e driftError) Error() string {
	return fmt.Sprintf("config drift: persisted gateway port %d: %s", e.persisted, e.detail)
}

// IsConfigDrift reports whether err is a persisted-versus-observed port
// mismatch.
func IsConfigDrift(err error) bool {
	_, ok := err.(driftError)
	return ok
}
