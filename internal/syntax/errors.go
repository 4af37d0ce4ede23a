package syntax

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure to produce a tree
type ErrorKind string

const (
	ErrorKindSyntax ErrorKind = "SyntaxError"
	ErrorKindParse  ErrorKind = "GenericParseFailure"
	ErrorKindLimit  ErrorKind = "LimitExceeded"
)

// ParseError is returned by parsers when no usable tree exists.
// Line and Column are 1-based; zero means unknown.
type ParseError struct {
	Kind    ErrorKind
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case ErrorKindSyntax:
		return fmt.Sprintf("SyntaxError at line %d: %s", e.Line, e.Message)
	case ErrorKindLimit:
		return fmt.Sprintf("input too large: %s", e.Message)
	default:
		return fmt.Sprintf("Invalid Python code: %s", e.Message)
	}
}

// AsParseError converts any error into a *ParseError. Errors that are not
// already parse errors become GenericParseFailure.
func AsParseError(err error) *ParseError {
	if err == nil {
		return nil
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe
	}
	return &ParseError{Kind: ErrorKindParse, Message: err.Error()}
}
