// Package ports negotiates a free TCP port for the gateway. Availability is
// checked with a local connect-probe, so a chosen port can still be claimed
// by another process before the caller binds it; ListenWithRetry handles
// that race at the bind call site.
package ports

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

const probeTimeout = 200 * time.Millisecond

// IsBusy reports whether something is listening on 127.0.0.1:port.
func IsBusy(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), probeTimeout)
	if err == nil {
		_ = conn.Close()
		return true
	}
	return false
}

// FindAvailablePort scans [low, high] ascending and returns the first port
// with no listener. Fails with a RangeExhausted error when every port in the
// range is busy.
func FindAvailablePort(low, high int) (int, error) {
	return FindAvailablePortExcluding(low, high, nil)
}

// FindAvailablePortExcluding is FindAvailablePort with a skip set, used when
// a previously chosen port lost the check-then-bind race.
func FindAvailablePortExcluding(low, high int, exclude map[int]bool) (int, error) {
	if low > high || low < 1 || high > 65535 {
		return 0, fmt.Errorf("invalid port range [%d, %d]", low, high)
	}
	for p := low; p <= high; p++ {
		if exclude[p] {
			continue
		}
		if !IsBusy(p) {
			return p, nil
		}
	}
	return 0, rangeExhaustedError{low: low, high: high}
}

// ListenWithRetry binds a TCP listener on 127.0.0.1. It tries the preferred
// port first; each bind failure re-invokes the negotiator over [low, high]
// excluding ports that already failed, up to retries additional attempts.
// Returns the listener and the port actually bound, which may differ from
// preferred.
func ListenWithRetry(preferred, low, high, retries int) (net.Listener, int, error) {
	failed := map[int]bool{}
	port := preferred
	for attempt := 0; ; attempt++ {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return l, port, nil
		}
		failed[port] = true
		if attempt >= retries {
			return nil, 0, bindExhaustedError{attempts: attempt + 1, last: err}
		}
		next, ferr := FindAvailablePortExcluding(low, high, failed)
		if ferr != nil {
			return nil, 0, bindExhaustedError{attempts: attempt + 1, last: ferr}
		}
		port = next
	}
}

// WaitHTTP polls url until it returns the wanted status or timeout elapses.
func WaitHTTP(url string, want int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client := &http.Client{Timeout: 2 * time.Second}
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == want {
				return nil
			}
		}
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s to return %d", url, want)
		}
	}
}
