// Package errors implements Strata's closed error taxonomy (spec.md §7),
// grounded on docdb/internal/errors's sentinel-error style but restructured
// around a single StrataError carrying a Kind plus structured context, so
// an operator can always find the offending key/doc/run from the error
// alone.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories Strata surfaces across its
// boundary.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindInvalidInput
	KindReadWriteConflict
	KindCasConflict
	KindJsonPathConflict
	KindConstraintViolation
	KindCorruption
	KindDurability
	KindShutdown
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidInput:
		return "InvalidInput"
	case KindReadWriteConflict:
		return "ReadWriteConflict"
	case KindCasConflict:
		return "CasConflict"
	case KindJsonPathConflict:
		return "JsonPathConflict"
	case KindConstraintViolation:
		return "ConstraintViolation"
	case KindCorruption:
		return "Corruption"
	case KindDurability:
		return "Durability"
	case KindShutdown:
		return "Shutdown"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// StrataError is the single error type returned across the Strata
// boundary. Use errors.Is against the sentinel Err* values to classify,
// or inspect Kind/fields directly for diagnostics.
type StrataError struct {
	Kind     Kind
	Key      string
	Run      string
	Doc      string
	Path     string
	Expected uint64
	Actual   uint64
	Reason   string
	Wrapped  error
}

func (e *StrataError) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" key=%s", e.Key)
	}
	if e.Run != "" {
		msg += fmt.Sprintf(" run=%s", e.Run)
	}
	if e.Doc != "" {
		msg += fmt.Sprintf(" doc=%s", e.Doc)
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" path=%s", e.Path)
	}
	if e.Kind == KindCasConflict {
		msg += fmt.Sprintf(" expected=%d actual=%d", e.Expected, e.Actual)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

func (e *StrataError) Unwrap() error { return e.Wrapped }

func (e *StrataError) Is(target error) bool {
	t, ok := target.(*StrataError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel values for errors.Is comparisons against a bare Kind.
var (
	ErrNotFound           = &StrataError{Kind: KindNotFound}
	ErrInvalidInput        = &StrataError{Kind: KindInvalidInput}
	ErrReadWriteConflict  = &StrataError{Kind: KindReadWriteConflict}
	ErrCasConflict        = &StrataError{Kind: KindCasConflict}
	ErrJsonPathConflict   = &StrataError{Kind: KindJsonPathConflict}
	ErrConstraintViolation = &StrataError{Kind: KindConstraintViolation}
	ErrCorruption         = &StrataError{Kind: KindCorruption}
	ErrDurability         = &StrataError{Kind: KindDurability}
	ErrShutdown           = &StrataError{Kind: KindShutdown}
	ErrInternal           = &StrataError{Kind: KindInternal}
)

func NotFound(reason, key, run string) error {
	return &StrataError{Kind: KindNotFound, Reason: reason, Key: key, Run: run}
}

func InvalidInput(reason string) error {
	return &StrataError{Kind: KindInvalidInput, Reason: reason}
}

func ReadWriteConflict(key, run string) error {
	return &StrataError{Kind: KindReadWriteConflict, Key: key, Run: run, Reason: "read set stale at commit"}
}

func CasConflict(key, run string, expected, actual uint64) error {
	return &StrataError{Kind: KindCasConflict, Key: key, Run: run, Expected: expected, Actual: actual}
}

func JsonPathConflict(doc, path string) error {
	return &StrataError{Kind: KindJsonPathConflict, Doc: doc, Path: path}
}

func ConstraintViolation(reason string) error {
	return &StrataError{Kind: KindConstraintViolation, Reason: reason}
}

func Corruption(where string, wrapped error) error {
	return &StrataError{Kind: KindCorruption, Reason: where, Wrapped: wrapped}
}

func Durability(reason string, wrapped error) error {
	return &StrataError{Kind: KindDurability, Reason: reason, Wrapped: wrapped}
}

func Shutdown() error {
	return &StrataError{Kind: KindShutdown, Reason: "operation attempted after shutdown"}
}

func Internal(reason string, wrapped error) error {
	return &StrataError{Kind: KindInternal, Reason: reason, Wrapped: wrapped}
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// unrecognized errors so callers always get a closed-set answer.
func KindOf(err error) Kind {
	var se *StrataError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsConflict reports whether err is one of the two OCC conflict kinds the
// closure-transaction retry loop should retry on.
func IsConflict(err error) bool {
	k := KindOf(err)
	return k == KindReadWriteConflict || k == KindCasConflict
}
