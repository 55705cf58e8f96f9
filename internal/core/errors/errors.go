// Package errors classifies the failures the document service reports.
// Engine errors keep their own types; the service wraps them in a
// DomainError so callers can switch on a code and still reach the cause.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

type ErrorCode string

const (
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
	CodeNotSupported    ErrorCode = "NOT_SUPPORTED"
	CodeQueryCompile    ErrorCode = "QUERY_COMPILE_ERROR"
	CodeInjectionCycle  ErrorCode = "INJECTION_CYCLE"
	CodeStaleQuery      ErrorCode = "STALE_QUERY"
	CodeSyntax          ErrorCode = "SYNTAX_ERROR"
)

// Context keys.
const (
	CtxPath      = "path"
	CtxOperation = "operation"
	CtxLanguage  = "language"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]string
}

func (e *DomainError) WithContext(key, value string) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// Error renders "[CODE] message: cause (k=v ...)" with context keys sorted.
func (e *DomainError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Context) > 0 {
		pairs := make([]string, 0, len(e.Context))
		for _, k := range slices.Sorted(maps.Keys(e.Context)) {
			pairs = append(pairs, k+"="+e.Context[k])
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(pairs, " "))
	}
	return b.String()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext attaches key=value to the DomainError in err's chain, or wraps
// err as an internal error carrying it.
func AddContext(err error, key, value string) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return de
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "unexpected error",
		Err:     err,
		Context: map[string]string{key: value},
	}
}

func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// CodeOf returns the code of the outermost DomainError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

// ExitCode maps err to a process exit status: 0 for nil, 2 for bad input
// (unknown files or languages, invalid arguments, malformed queries) and 1
// for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	code, _ := CodeOf(err)
	switch code {
	case CodeNotFound, CodeValidationError, CodeQueryCompile, CodeNotSupported:
		return 2
	}
	return 1
}
