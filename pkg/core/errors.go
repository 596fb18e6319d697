// Package core provides the duomem engine: dual-store ingestion and retrieval
// of conversational memory facts.
package core

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable error taxonomy callers can branch on.
//
// Every error surfaced by the engine or a transport carries exactly one kind;
// callers should switch on the kind rather than parse message text.
type ErrorKind string

const (
	// KindDecodeError marks a malformed inbound protocol message. The read
	// loop reports it and continues.
	KindDecodeError ErrorKind = "decode_error"

	// KindValidationError marks bad request parameters.
	KindValidationError ErrorKind = "validation_error"

	// KindExtractionFailed marks a failure of the extraction capability.
	// Ingestion degrades to fact-only storage rather than failing.
	KindExtractionFailed ErrorKind = "extraction_failed"

	// KindStorageUnavailable marks an unreachable store backend. Ingestion
	// fails hard on the similarity store; queries fall back to whichever
	// store is reachable.
	KindStorageUnavailable ErrorKind = "storage_unavailable"

	// KindPartialConsistency marks a fact stored without its graph
	// enrichment. Warning level, never a hard error.
	KindPartialConsistency ErrorKind = "partial_consistency"

	// KindChannelBroken marks a broken primary channel. This is the only
	// condition that terminates the process.
	KindChannelBroken ErrorKind = "channel_broken"

	// KindNotFound marks a missing fact.
	KindNotFound ErrorKind = "not_found"

	// KindInternal marks an unclassified internal failure.
	KindInternal ErrorKind = "internal"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested fact was not found.
	ErrNotFound = errors.New("fact not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorageUnavailable indicates that the similarity store rejected a
	// write, so the ingestion could not be recorded at all.
	ErrStorageUnavailable = errors.New("similarity store unavailable")

	// ErrExtractionFailed indicates that the extraction capability failed.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrChannelBroken indicates that the primary protocol channel is
	// closed or unwritable.
	ErrChannelBroken = errors.New("primary channel broken")
)

// EngineError wraps errors with operation context and a stable kind.
//
// The format of Error() is: "duomem: <Op>: <Err>"
//
// Example:
//
//	err := &EngineError{Op: "Ingest", Kind: KindStorageUnavailable, Err: ErrStorageUnavailable}
//	// Error() returns: "duomem: Ingest: similarity store unavailable"
type EngineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Kind is the stable error classification.
	Kind ErrorKind

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
func (e *EngineError) Error() string {
	return fmt.Sprintf("duomem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError wrapping the given error.
//
// If err is nil, returns nil, allowing safe wrapping at return sites:
//
//	return result, NewEngineError("Ingest", KindStorageUnavailable, err)
func NewEngineError(op string, kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the error kind from any error produced by the engine.
//
// Errors that are not EngineError values map to KindInternal, keeping the
// taxonomy closed for transports.
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidConfig):
		return KindValidationError
	case errors.Is(err, ErrStorageUnavailable):
		return KindStorageUnavailable
	case errors.Is(err, ErrExtractionFailed):
		return KindExtractionFailed
	case errors.Is(err, ErrChannelBroken):
		return KindChannelBroken
	default:
		return KindInternal
	}
}
