package browser

import (
	"errors"
	"strings"
)

var errZoomRange = errors.New("zoom percent must be in [25,200]")

// failureClass buckets session-construction errors for the retry state
// machine.
type failureClass int

const (
	failureTransient failureClass = iota
	failurePermanent
	failureUnknown
)

// Substrings observed in driver errors. Transient failures are retried with
// backoff; permanent ones fail fast.
var (
	transientMarkers = []string{
		"connection timed out",
		"context deadline exceeded",
		"session not created",
		"cannot connect to browser",
		"websocket url timeout",
		"driver unavailable",
	}
	permanentMarkers = []string{
		"executable file not found",
		"no such file or directory",
		"permission denied",
		"browser not installed",
	}
)

// classifyFailure maps a session-construction error onto a failure class.
// Unrecognized errors are treated as transient by the caller but logged at
// WARN.
func classifyFailure(err error) failureClass {
	if err == nil {
		return failureUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return failurePermanent
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return failureTransient
		}
	}
	return failureUnknown
}
