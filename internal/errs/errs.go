// Package errs defines the store-wide error taxonomy. Errors are
// classified by kind, not by the component that raised them, so callers
// (the HTTP façade in particular) can map them to a status code with a
// single errors.Is switch.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage wraps I/O failures from the underlying KV engine.
	ErrStorage = errors.New("storage error")

	// ErrCorruption signals decoded bytes that do not match their tag,
	// or a dictionary hash collision against a different lexical form.
	ErrCorruption = errors.New("corruption error")

	// ErrParsing signals an invalid lexical form for a claimed datatype,
	// or an RDF/SPARQL syntax error.
	ErrParsing = errors.New("parsing error")

	// ErrForbidden signals a write attempted against a read-only store.
	ErrForbidden = errors.New("forbidden: store is read-only")

	// ErrNotFound signals a missing named graph or quad.
	ErrNotFound = errors.New("not found")

	// ErrInterrupted signals external cancellation of a transaction or
	// a running query.
	ErrInterrupted = errors.New("interrupted")

	// ErrUnsupportedFeature signals an unimplemented SPARQL feature. No
	// code path in this module returns it.
	ErrUnsupportedFeature = errors.New("unsupported feature")

	// ErrWriterBusy signals a second writable transaction was attempted
	// while one was already open, in fail-fast mode.
	ErrWriterBusy = errors.New("another writable transaction is active")
)

// Storage wraps err with ErrStorage so errors.Is(err, ErrStorage) holds.
func Storage(format string, args ...any) error {
	return wrap(ErrStorage, format, args...)
}

// Corruption wraps err with ErrCorruption.
func Corruption(format string, args ...any) error {
	return wrap(ErrCorruption, format, args...)
}

// Parsing wraps err with ErrParsing.
func Parsing(format string, args ...any) error {
	return wrap(ErrParsing, format, args...)
}

func wrap(sentinel error, format string, args ...any) error {
	return &taggedError{sentinel: sentinel, msg: fmt.Sprintf(format, args...)}
}

type taggedError struct {
	sentinel error
	msg      string
}

func (e *taggedError) Error() string { return e.msg }
func (e *taggedError) Unwrap() error { return e.sentinel }
