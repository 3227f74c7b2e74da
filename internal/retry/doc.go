// Package retry classifies failures as retryable or fatal and computes
// exponential backoff delays.
//
// The same classifier serves two independent loops: the generation client's
// call-level retry (short horizon, never re-issues timeouts or invalid
// responses) and the workflow manager's job-level retry (long horizon, owns
// the terminal decision).
package retry
