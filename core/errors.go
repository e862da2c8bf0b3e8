package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies run failures. Categories are errors themselves so that
// callers can test for them with errors.Is.
type ErrorCategory string

const (
	CategoryConfigNotFound     ErrorCategory = "config_not_found"
	CategoryConfigParse        ErrorCategory = "config_parse"
	CategorySchemaMismatch     ErrorCategory = "schema_mismatch"
	CategoryPartialLoadFailure ErrorCategory = "partial_load_failure"
	CategoryInsufficientData   ErrorCategory = "insufficient_data"
	CategoryWriteFailure       ErrorCategory = "write_failure"
)

func (c ErrorCategory) Error() string {
	return string(c)
}

// Process exit codes
const (
	ExitOK               = 0
	ExitInsufficientData = 1
	ExitConfigError      = 2
	ExitSchemaMismatch   = 3
	ExitFatal            = 4
)

// ReconError wraps a failure with the method and file it concerns
type ReconError struct {
	Category ErrorCategory
	Method   string
	Path     string
	Err      error
}

func (e *ReconError) Error() string {
	msg := "[" + string(e.Category) + "]"
	if e.Method != "" {
		msg += " method " + e.Method + ":"
	}
	if e.Path != "" {
		msg += " " + e.Path + ":"
	}
	if e.Err != nil {
		msg += " " + e.Err.Error()
	}
	return msg
}

func (e *ReconError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Category}
	}
	return []error{e.Category, e.Err}
}

func newReconError(category ErrorCategory, method, path string, err error) *ReconError {
	return &ReconError{Category: category, Method: method, Path: path, Err: err}
}

func schemaMismatchf(method, format string, args ...interface{}) *ReconError {
	return newReconError(CategorySchemaMismatch, method, "", fmt.Errorf(format, args...))
}

// ExitCode maps an error returned by a run to the process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, CategoryInsufficientData):
		return ExitInsufficientData
	case errors.Is(err, CategoryConfigNotFound), errors.Is(err, CategoryConfigParse):
		return ExitConfigError
	case errors.Is(err, CategorySchemaMismatch):
		return ExitSchemaMismatch
	default:
		return ExitFatal
	}
}

// RowError records a single source row that could not be normalized
type RowError struct {
	Method string
	Path   string
	Line   int
	Err    error
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s line %d: %v", e.Path, e.Line, e.Err)
}

// Warning is a recovered failure surfaced in the final report
type Warning struct {
	Category ErrorCategory `json:"category"`
	Method   string        `json:"method,omitempty"`
	Message  string        `json:"message"`
}

func (w Warning) String() string {
	if w.Method == "" {
		return fmt.Sprintf("[%s] %s", w.Category, w.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", w.Category, w.Method, w.Message)
}

func asReconError(err error) (*ReconError, bool) {
	var rerr *ReconError
	ok := errors.As(err, &rerr)
	return rerr, ok
}

// WriteFailure wraps an error writing an output artifact
func WriteFailure(path string, err error) error {
	return newReconError(CategoryWriteFailure, "", path, err)
}
