// Package time holds swappable time primitives used by the job runner's
// allocation loop and the server preparer's readiness waits, so tests can
// collapse real sleeps without threading a clock interface through every
// call site.
package time

import (
	"time"
)

// After is a function variable for swapping during tests, allowing
// variable behavior, tracking of calls, etc depending on what the test
// needs.
var After = time.After

// Now is a function variable for swapping during tests that need a
// deterministic or advancing clock.
var Now = time.Now

// NewTicker is a function variable for swapping during tests that exercise
// ticker-driven loops (the server preparer's heartbeat) without waiting on
// a real interval.
var NewTicker = time.NewTicker
