package model

import (
	"github.com/rotisserie/eris"
)

// ErrorKind classifies a pipeline failure so callers can decide whether to
// skip a metric group, skip a city, or log a stack trace.
type ErrorKind int

const (
	// KindUnexpected is any failure not classified below, including
	// recovered panics inside a metric group.
	KindUnexpected ErrorKind = iota
	// KindAcquisition means a data source was unreachable or returned nothing usable.
	KindAcquisition
	// KindDegenerate means the geometry or graph is too small to measure.
	KindDegenerate
	// KindConfiguration means the input or settings are invalid for a whole city.
	KindConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case KindAcquisition:
		return "acquisition_failure"
	case KindDegenerate:
		return "degenerate_geometry"
	case KindConfiguration:
		return "configuration_error"
	default:
		return "unexpected_computation_error"
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AcquisitionError marks err as an AcquisitionFailure.
func AcquisitionError(op string, err error) error {
	return &Error{Kind: KindAcquisition, Op: op, Err: err}
}

// DegenerateError marks err as a DegenerateGeometry failure.
func DegenerateError(op string, err error) error {
	return &Error{Kind: KindDegenerate, Op: op, Err: err}
}

// ConfigurationError marks err as a ConfigurationError.
func ConfigurationError(op string, err error) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: err}
}

// UnexpectedError marks err as an UnexpectedComputationError.
func UnexpectedError(op string, err error) error {
	return &Error{Kind: KindUnexpected, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are unexpected.
func KindOf(err error) ErrorKind {
	var me *Error
	if eris.As(err, &me) {
		return me.Kind
	}
	return KindUnexpected
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
