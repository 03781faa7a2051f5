package expression

import (
	"errors"
	"fmt"
)

// ErrExpression is the sentinel matched by every evaluation or parse failure.
var ErrExpression = errors.New("expression error")

// Error describes a malformed or unresolvable expression and where it came from.
type Error struct {
	Expr   string // Expression text
	Source string // Owner of the expression, e.g. "flow f-1" or "task review"
	Reason string
}

func (e *Error) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("invalid expression %q in %s: %s", e.Expr, e.Source, e.Reason)
	}

	return fmt.Sprintf("invalid expression %q: %s", e.Expr, e.Reason)
}

// Is makes errors.Is(err, ErrExpression) hold for every *Error.
func (e *Error) Is(target error) bool {
	return target == ErrExpression
}

// IsExpressionError checks if an error originates from expression parsing or evaluation.
func IsExpressionError(err error) bool {
	return errors.Is(err, ErrExpression)
}
