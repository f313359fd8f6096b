package hier

import (
	"errors"
	"strings"
	"testing"
)

func TestFilterErrorMessage(t *testing.T) {
	err := &FilterError{
		Engine:  "expr",
		Expr:    `status == "todo"`,
		Subject: "task/t1",
		Err:     errors.New("boom"),
	}

	msg := err.Error()
	for _, want := range []string{"hier:", "expr filter", `expr="status == \"todo\""`, "subject=task/t1", "boom"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}

	empty := &FilterError{Engine: "cel", Err: errors.New("bad")}
	if !strings.Contains(empty.Error(), "expr=<empty>") {
		t.Fatalf("empty expression should render as <empty>: %q", empty.Error())
	}
}

func TestFilterErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := wrapFilterError("expr", "x > 1", "task/t1", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to survive errors.Is")
	}

	var filterErr *FilterError
	if !errors.As(err, &filterErr) {
		t.Fatalf("expected *FilterError, got %T", err)
	}
	if filterErr.Engine != "expr" || filterErr.Subject != "task/t1" {
		t.Fatalf("unexpected metadata: %+v", filterErr)
	}
}

func TestWrapFilterErrorFillsMissingMetadata(t *testing.T) {
	inner := &FilterError{Err: errors.New("boom")}
	err := wrapFilterError("cel", "version > 2", "branch/b1", inner)

	var filterErr *FilterError
	if !errors.As(err, &filterErr) {
		t.Fatalf("expected *FilterError, got %T", err)
	}
	if filterErr.Engine != "cel" || filterErr.Expr != "version > 2" || filterErr.Subject != "branch/b1" {
		t.Fatalf("metadata not filled: %+v", filterErr)
	}
}

func TestWrapFilterErrorKeepsExistingMetadata(t *testing.T) {
	inner := &FilterError{Engine: "js", Expr: "a", Subject: "task/t9", Err: errors.New("boom")}
	err := wrapFilterError("expr", "b", "task/t1", inner)

	var filterErr *FilterError
	if !errors.As(err, &filterErr) {
		t.Fatalf("expected *FilterError, got %T", err)
	}
	if filterErr.Engine != "js" || filterErr.Expr != "a" || filterErr.Subject != "task/t9" {
		t.Fatalf("existing metadata overwritten: %+v", filterErr)
	}
}

func TestWrapFilterEngineError(t *testing.T) {
	if wrapFilterEngineError("expr", nil) != nil {
		t.Fatalf("nil error must stay nil")
	}

	err := wrapFilterEngineError("expr", errors.New("compile failed"))
	if got := err.Error(); !strings.HasPrefix(got, "hier: expr filter:") {
		t.Fatalf("unexpected message %q", got)
	}

	already := errors.New("hier: something upstream")
	if got := wrapFilterEngineError("expr", already); got != already {
		t.Fatalf("prefixed errors must pass through unchanged")
	}

	inner := &FilterError{Engine: "cel", Err: errors.New("boom")}
	if got := wrapFilterEngineError("expr", inner); got != error(inner) {
		t.Fatalf("FilterError must pass through unchanged")
	}
}
