package retry

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"syscall"
	"time"

	"vitae/internal/services"
)

// Reasons reported by Classify.
const (
	ReasonTransientCode = "transient_code"
	ReasonKeyword       = "transient_keyword"
	ReasonFlagged       = "flagged"
	ReasonFatal         = "fatal"
	ReasonDefault       = "default"
)

// Classification is the retry verdict for a single error.
type Classification struct {
	Retryable bool
	// Timeout marks bounded-wait expiry. Timeouts are retryable but never
	// re-issued immediately by the call-level loop.
	Timeout bool
	Reason  string
}

var transientCodes = map[string]struct{}{
	"ECONNREFUSED": {},
	"ETIMEDOUT":    {},
	"ENOTFOUND":    {},
	"EAI_AGAIN":    {},
}

var transientStatuses = map[int]struct{}{
	429: {},
	502: {},
	503: {},
	504: {},
}

var transientKeywords = []string{
	"timeout",
	"timed out",
	"connection",
	"network",
	"rate limit",
	"temporary",
}

// Classify decides whether err is worth retrying. The checks run in a fixed
// order: transient codes, transient message keywords, an explicit retryable
// flag from the error's origin, known fatal kinds, and finally a retryable
// default. A false flag is not a verdict; such errors fall through.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}
	timeout := isTimeout(err)
	if hasTransientCode(err) {
		return Classification{Retryable: true, Timeout: timeout, Reason: ReasonTransientCode}
	}
	msg := strings.ToLower(err.Error())
	for _, keyword := range transientKeywords {
		if strings.Contains(msg, keyword) {
			return Classification{Retryable: true, Timeout: timeout, Reason: ReasonKeyword}
		}
	}
	var flagged interface{ Retryable() bool }
	if errors.As(err, &flagged) && flagged.Retryable() {
		return Classification{Retryable: true, Timeout: timeout, Reason: ReasonFlagged}
	}
	if errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrConfiguration) {
		return Classification{Retryable: false, Reason: ReasonFatal}
	}
	return Classification{Retryable: true, Timeout: timeout, Reason: ReasonDefault}
}

func hasTransientCode(err error) bool {
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ETIMEDOUT} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && (dnsErr.IsNotFound || dnsErr.IsTemporary || dnsErr.IsTimeout) {
		return true
	}
	var status interface{ HTTPStatus() int }
	if errors.As(err, &status) {
		if _, ok := transientStatuses[status.HTTPStatus()]; ok {
			return true
		}
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if _, ok := transientCodes[strings.ToUpper(coded.Code())]; ok {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, services.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Backoff returns base × 2^attemptIndex with no jitter. attemptIndex is zero
// based; negative indexes are treated as zero. The result saturates instead
// of overflowing.
func Backoff(base time.Duration, attemptIndex int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attemptIndex < 0 {
		attemptIndex = 0
	}
	if attemptIndex >= 62 || base > time.Duration(math.MaxInt64>>uint(attemptIndex)) {
		return time.Duration(math.MaxInt64)
	}
	return base << uint(attemptIndex)
}

// Policy bounds one retry loop. Call-level and job-level retries each own a
// Policy with their own counters.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// State is the retry decision after a failed attempt.
type State struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Retryable   bool
	Timeout     bool
	Exhausted   bool
	Reason      string
}

// ShouldRetry reports whether another attempt should be scheduled.
func (s State) ShouldRetry() bool {
	return s.Retryable && !s.Exhausted
}

// Evaluate classifies err after attempt attempts (1-based) have been made.
func (p Policy) Evaluate(err error, attempt int) State {
	class := Classify(err)
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	state := State{
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Retryable:   class.Retryable,
		Timeout:     class.Timeout,
		Exhausted:   attempt >= maxAttempts,
		Reason:      class.Reason,
	}
	if state.ShouldRetry() {
		state.Delay = Backoff(p.BaseDelay, attempt-1)
	}
	return state
}

// ShouldRetryCall applies the call-level rules on top of Evaluate: timeouts,
// invalid responses, and caller cancellation are surfaced instead of being
// re-issued immediately.
func (p Policy) ShouldRetryCall(err error, attempt int) (State, bool) {
	state := p.Evaluate(err, attempt)
	switch {
	case errors.Is(err, context.Canceled):
		return state, false
	case state.Timeout:
		return state, false
	case errors.Is(err, services.ErrInvalidResponse):
		return state, false
	}
	return state, state.ShouldRetry()
}
