// Package errors provides error handling for the customer intelligence pipeline.
//
// It re-exports github.com/cockroachdb/errors so every error created in the
// module carries a stack trace, and defines the sentinel markers that classify
// pipeline failures:
//
//	if errors.Is(err, errors.ErrSchema) {
//	    // a required column is missing
//	}
//
// Stage failures are recorded with Stack(err), which renders the full chain
// including the captured stack.
package errors

import (
	"fmt"
	"net/http"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New       = crdb.New
	Newf      = crdb.Newf
	Wrap      = crdb.Wrap
	Wrapf     = crdb.Wrapf
	WithStack = crdb.WithStack
	Mark      = crdb.Mark
)

// User-facing messages and details
var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	FlattenHints = crdb.FlattenHints
)

// Error inspection
var (
	Is        = crdb.Is
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Sentinel markers. Match them with Is; construct them with the helpers below
// so the message carries context while the classification survives wrapping.
var (
	// ErrSchema indicates a required column is absent from the dataset
	ErrSchema = New("schema error")

	// ErrPrerequisite indicates a stage ran before the upstream output it needs
	ErrPrerequisite = New("prerequisite error")

	// ErrInsufficientData indicates a statistical precondition was not met
	ErrInsufficientData = New("insufficient data")

	// ErrComputation indicates an unexpected numeric failure
	ErrComputation = New("computation error")

	// ErrInvalidParameter indicates a caller-supplied parameter is out of range
	ErrInvalidParameter = New("invalid parameter")

	// ErrRunInProgress is returned when a pipeline run is already active
	ErrRunInProgress = New("pipeline is already running")

	// ErrNotFound indicates the requested dataset, stage or report does not exist
	ErrNotFound = New("not found")
)

// Schema reports that engine needs column and the dataset does not carry it.
func Schema(engine, column string) error {
	err := Newf("%s: required column %q is missing", engine, column)
	err = WithHintf(err, "the dataset must provide %s before %s can run", column, engine)
	return Mark(err, ErrSchema)
}

// Prerequisite reports that stage was invoked before missing was produced.
func Prerequisite(stage, missing string) error {
	err := Newf("%s: %s is not available", stage, missing)
	return Mark(err, ErrPrerequisite)
}

// InsufficientData reports an unmet statistical precondition.
func InsufficientData(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInsufficientData)
}

// InvalidParameter reports a bad caller-supplied parameter.
func InvalidParameter(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidParameter)
}

// NotFound reports a missing resource.
func NotFound(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// Computation wraps cause as a numeric failure. A nil cause creates a new error.
func Computation(cause error, format string, args ...interface{}) error {
	if cause == nil {
		return Mark(Newf(format, args...), ErrComputation)
	}
	return Mark(Wrapf(cause, format, args...), ErrComputation)
}

// Kind returns a stable machine-readable code for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrSchema):
		return "schema_error"
	case Is(err, ErrPrerequisite):
		return "prerequisite_error"
	case Is(err, ErrInsufficientData):
		return "insufficient_data"
	case Is(err, ErrComputation):
		return "computation_error"
	case Is(err, ErrInvalidParameter):
		return "invalid_parameter"
	case Is(err, ErrRunInProgress):
		return "run_in_progress"
	case Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps err onto the status code the API responds with.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "schema_error", "insufficient_data":
		return http.StatusUnprocessableEntity
	case "prerequisite_error", "run_in_progress":
		return http.StatusConflict
	case "invalid_parameter":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Stack renders err with its full cause chain and captured stack trace.
func Stack(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%+v", err)
}
