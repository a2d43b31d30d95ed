package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/arbor/internal/queryir"
)

// QueryError represents a query that could not be compiled or run.
//
// Query errors include:
//   - Invalid query: unknown selector, malformed join condition, unbound variable
//   - Engine closed: the engine was shut down before the query ran
//
// QueryError includes structured fields for diagnostics.
type QueryError struct {
	// Code identifies the error category.
	Code QueryErrorCode

	// Message is a human-readable description.
	Message string

	// Selector is the selector the first problem refers to, if any.
	Selector queryir.SelectorName

	// Problems lists every validation problem, in discovery order.
	Problems []queryir.Problem

	// Details contains additional context.
	Details map[string]string
}

// QueryErrorCode categorizes query errors.
type QueryErrorCode string

const (
	// ErrCodeInvalidQuery indicates the command cannot be compiled.
	ErrCodeInvalidQuery QueryErrorCode = "INVALID_QUERY"

	// ErrCodeEngineClosed indicates the engine was closed.
	ErrCodeEngineClosed QueryErrorCode = "ENGINE_CLOSED"
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("%s: %s (selector=%s)", e.Code, e.Message, e.Selector)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidQuery returns true if the error is an invalid query error.
// Uses errors.As to handle wrapped errors.
func IsInvalidQuery(err error) bool {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code == ErrCodeInvalidQuery
	}
	return false
}

// IsEngineClosed returns true if the error reports a closed engine.
func IsEngineClosed(err error) bool {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code == ErrCodeEngineClosed
	}
	return false
}

// NewInvalidQueryError creates a QueryError from validation problems.
func NewInvalidQueryError(problems []queryir.Problem) *QueryError {
	qe := &QueryError{
		Code:     ErrCodeInvalidQuery,
		Problems: problems,
		Details:  map[string]string{},
	}
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.String()
		qe.Details[p.Code] = p.Message
	}
	qe.Message = strings.Join(msgs, "; ")
	if len(problems) > 0 {
		qe.Selector = problems[0].Selector
	}
	return qe
}

// errEngineClosed is returned by a closed engine.
var errEngineClosed = &QueryError{Code: ErrCodeEngineClosed, Message: "query engine is closed"}
