package model

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrSource        = errors.New("event source failed")
	ErrNormalization = errors.New("payload could not be normalized")
	ErrSink          = errors.New("report sink failed")
)

// ErrPayloadShape marks a payload that decodes but is neither accepted
// representation, such as a JSON object with no "resources" list. It is a
// source fault, not a parse fault.
var ErrPayloadShape = errors.New("unrecognized payload shape")

// SourceError means the event source was unreachable or returned something
// that is not a payload. The run aborts before anything is written.
type SourceError struct {
	Provider string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Provider, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func (e *SourceError) Is(target error) bool { return target == ErrSource }

// NormalizationError means the payload was fetched but no part of it could be
// parsed as either representation.
type NormalizationError struct {
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize: %s: %v", e.Reason, e.Err)
	}
	return "normalize: " + e.Reason
}

func (e *NormalizationError) Unwrap() error { return e.Err }

func (e *NormalizationError) Is(target error) bool { return target == ErrNormalization }

// SinkError wraps a failure to persist the report.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink: %v", e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

func (e *SinkError) Is(target error) bool { return target == ErrSink }
