package fleet

import (
	"errors"
	"fmt"

	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/dbutil"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/upstream"
)

type Source string

const (
	SourceUpstream  Source = "upstream"
	SourceMetricsDB Source = "metricsdb"
	SourcePriceDB   Source = "pricedb"
	SourceEngine    Source = "engine"
)

func (s Source) String() string {
	return string(s)
}

type ErrorKind string

const (
	KindUnavailable  ErrorKind = "unavailable"  // auth rejected, connection refused, http status
	KindTimeout      ErrorKind = "timeout"      // request deadline hit or cancelled
	KindMalformed    ErrorKind = "malformed"    // unexpected response shape
	KindMissing      ErrorKind = "missing"      // table or row absent
	KindUnconfigured ErrorKind = "unconfigured" // credential or url not set
	KindPanic        ErrorKind = "panic"
)

func (k ErrorKind) String() string {
	return string(k)
}

var (
	ErrNoCustomers   = errors.New("no customers available")
	ErrPriceNotFound = errors.New("no btc price for the day")
)

// SourceError is a failed source call, every kind is recoverable
type SourceError struct {
	Source Source
	Kind   ErrorKind
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Result carries either the value of a source call or the reason it failed
type Result[T any] struct {
	Value T
	Err   *SourceError
}

func (r Result[T]) Ok() bool {
	return r.Err == nil
}

// Or returns the value or fallback when the call failed
func (r Result[T]) Or(fallback T) T {
	if r.Err != nil {
		return fallback
	}
	return r.Value
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Fail[T any](source Source, kind ErrorKind, err error) Result[T] {
	return Result[T]{Err: &SourceError{Source: source, Kind: kind, Err: err}}
}

// Capture turns a value/error pair into a Result, classifying the error. The value is
// kept on failure since sources may return partial data along with the error.
func Capture[T any](source Source, v T, err error) Result[T] {
	if err == nil {
		return Ok(v)
	}
	return Result[T]{Value: v, Err: &SourceError{Source: source, Kind: Classify(err), Err: err}}
}

// Attempt runs fn and captures its outcome, a panic becomes a KindPanic failure
func Attempt[T any](source Source, fn func() (T, error)) (res Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			res = Fail[T](source, KindPanic, fmt.Errorf("recovered: %v", p))
		}
	}()
	v, err := fn()
	return Capture(source, v, err)
}

func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, upstream.ErrNotConfigured), errors.Is(err, dbutil.ErrNotConfigured):
		return KindUnconfigured
	case dbutil.IsRelationMissing(err), errors.Is(err, ErrPriceNotFound), errors.Is(err, ErrNoCustomers):
		return KindMissing
	case upstream.IsMalformed(err):
		return KindMalformed
	case dbutil.IsTimeout(err):
		return KindTimeout
	default:
		return KindUnavailable
	}
}
