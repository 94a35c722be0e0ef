// Package ioerr defines the kind-tagged error taxonomy shared by every
// layer of the I/O core. It mirrors the error-composition idiom of
// github.com/grailbio/base/errors (its E constructor mixes a wrapped cause
// with human-readable fragments into one message) but carries its own
// closed Kind enumeration, since the core's error set is fixed by the
// protocol it implements rather than open-ended.
package ioerr

import (
	baseerrors "github.com/grailbio/base/errors"
	pkgerrors "github.com/pkg/errors"
)

// Kind identifies the category of a core error. Equality checks on errors
// returned by this package compare Kind only, never the wrapped cause, so
// callers (and tests) can assert by kind regardless of the underlying OS
// error text.
type Kind int

const (
	// Other is the zero value; it should not be produced by this package.
	Other Kind = iota
	// AddressNotFound: a requested physical or virtual byte is not covered
	// by any descriptor or map entry.
	AddressNotFound
	// AddressesOverlap: a requested physical or virtual range collides with
	// an existing descriptor or map entry.
	AddressesOverlap
	// IoPluginNotFound: no registered plugin accepts a URI (typically while
	// reopening a deserialized descriptor).
	IoPluginNotFound
	// HndlNotFound: an operation referenced an unknown descriptor handle.
	HndlNotFound
	// TooManyFiles: the handle space is exhausted.
	TooManyFiles
	// Parse: a container plugin failed to parse its underlying bytes.
	Parse
	// PermissionDenied: an operation is not permitted by a descriptor's
	// permission set.
	PermissionDenied
	// Custom: a human-readable codec error carrying positional information
	// (e.g. a line number), used only for plugin parse diagnostics that
	// don't fit another kind.
	Custom
)

var kindNames = map[Kind]string{
	Other:             "Other",
	AddressNotFound:   "AddressNotFound",
	AddressesOverlap:  "AddressesOverlap",
	IoPluginNotFound:  "IoPluginNotFound",
	HndlNotFound:      "HndlNotFound",
	TooManyFiles:      "TooManyFiles",
	Parse:             "Parse",
	PermissionDenied:  "PermissionDenied",
	Custom:            "Custom",
}

// String renders the kind's name, e.g. "AddressNotFound".
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Other"
}

// Error is the concrete error type returned by this package. It is never
// constructed directly outside the package; use E or one of the kind
// helpers below.
type Error struct {
	Kind Kind
	// inner composes the human-readable message and any wrapped cause,
	// built with github.com/grailbio/base/errors.E so that the message
	// formatting matches the rest of the teacher's codebase.
	inner error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil || e.inner == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.inner.Error()
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.inner
}

// E builds an *Error of the given kind, composing args (a mix of strings
// and an optional wrapped error) the way github.com/grailbio/base/errors.E
// does.
func E(kind Kind, args ...interface{}) error {
	return &Error{Kind: kind, inner: baseerrors.E(args...)}
}

// Is reports whether err is an *Error of the given kind. Per the core's
// error-equality contract, this never inspects the wrapped cause.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of err, or Other if err is not from this package.
func KindOf(err error) Kind {
	e, ok := err.(*Error)
	if !ok {
		return Other
	}
	return e.Kind
}

// Convenience constructors for the most frequently raised kinds.

func NewAddressNotFound(args ...interface{}) error {
	return E(AddressNotFound, args...)
}

func NewAddressesOverlap(args ...interface{}) error {
	return E(AddressesOverlap, args...)
}

func NewHndlNotFound(args ...interface{}) error {
	return E(HndlNotFound, args...)
}

func NewIoPluginNotFound(args ...interface{}) error {
	return E(IoPluginNotFound, args...)
}

func NewPermissionDenied(args ...interface{}) error {
	return E(PermissionDenied, args...)
}

func NewTooManyFiles(args ...interface{}) error {
	return E(TooManyFiles, args...)
}

// NewParse builds a Parse-kind error. When the first argument is a wrapped
// OS/library error, it is given a stack trace via github.com/pkg/errors
// (the teacher's own dependency for this, though the teacher itself leans
// on errors.E for composition rather than pkgerrors.Wrap) before being
// composed with the remaining human-readable fragments.
func NewParse(args ...interface{}) error {
	if len(args) > 0 {
		if cause, ok := args[0].(error); ok {
			rest := append([]interface{}{pkgerrors.WithStack(cause)}, args[1:]...)
			return E(Parse, rest...)
		}
	}
	return E(Parse, args...)
}

func NewCustom(args ...interface{}) error {
	return E(Custom, args...)
}
