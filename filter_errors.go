package hier

import (
	"errors"
	"fmt"
	"strings"
)

// FilterError captures filter-engine metadata alongside the originating
// error.
type FilterError struct {
	Engine  string
	Expr    string
	Subject string
	Err     error
}

func (e *FilterError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("hier: %s filter %s subject=%s: %v", e.Engine, describeExpression(e.Expr), e.Subject, e.Err)
}

func (e *FilterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapFilterEngineError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var filterErr *FilterError
	if errors.As(err, &filterErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "hier:") {
		return err
	}
	return fmt.Errorf("hier: %s filter: %w", engine, err)
}

func wrapFilterError(engine, expr, subject string, err error) error {
	if err == nil {
		return nil
	}

	var filterErr *FilterError
	if errors.As(err, &filterErr) {
		if filterErr.Engine == "" {
			filterErr.Engine = engine
		}
		if filterErr.Expr == "" {
			filterErr.Expr = expr
		}
		if filterErr.Subject == "" {
			filterErr.Subject = subject
		}
		return filterErr
	}

	return &FilterError{
		Engine:  engine,
		Expr:    expr,
		Subject: subject,
		Err:     err,
	}
}
