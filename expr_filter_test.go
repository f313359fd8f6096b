package hier

import (
	"errors"
	"testing"
	"time"
)

func filterCtx(snapshot Data) FilterContext {
	return FilterContext{
		Snapshot: snapshot,
		Meta: map[string]any{
			"id":    "t1",
			"level": "task",
		},
	}
}

func TestExprFilterEvaluate(t *testing.T) {
	filter := NewExprFilter()

	result, err := filter.Evaluate(filterCtx(Data{"status": "todo", "priority": 2}), `status == "todo" && priority < 5`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result != true {
		t.Fatalf("result = %v, want true", result)
	}

	result, err = filter.Evaluate(filterCtx(Data{"status": "done"}), `status == "todo"`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result != false {
		t.Fatalf("result = %v, want false", result)
	}
}

func TestExprFilterArgsAndMeta(t *testing.T) {
	filter := NewExprFilter()
	ctx := filterCtx(Data{"status": "todo"})
	ctx.Args = map[string]any{"wanted": "todo"}

	result, err := filter.Evaluate(ctx, `status == args.wanted && meta.level == "task"`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result != true {
		t.Fatalf("result = %v, want true", result)
	}
}

func TestExprFilterNow(t *testing.T) {
	filter := NewExprFilter()
	pinned := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := filterCtx(Data{})
	ctx.Now = &pinned

	result, err := filter.Evaluate(ctx, `now.Year() == 2025`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result != true {
		t.Fatalf("result = %v, want true", result)
	}
}

func TestExprFilterCompileReuse(t *testing.T) {
	cache := NewMemoryProgramCache()
	filter := NewExprFilter(ExprWithProgramCache(cache))

	compiled, err := filter.Compile(`status == "todo"`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, ok := cache.Get(`status == "todo"`); !ok {
		t.Fatalf("compile should populate the program cache")
	}

	for _, tc := range []struct {
		status string
		want   bool
	}{
		{"todo", true},
		{"done", false},
	} {
		result, err := compiled.Evaluate(filterCtx(Data{"status": tc.status}))
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", tc.status, err)
		}
		if result != tc.want {
			t.Fatalf("Evaluate(%q) = %v, want %v", tc.status, result, tc.want)
		}
	}
}

func TestExprFilterRegistryFunctions(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("shout", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, errors.New("shout takes one argument")
		}
		s, _ := args[0].(string)
		return s + "!", nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	filter := NewExprFilter(ExprWithFunctionRegistry(registry))
	result, err := filter.Evaluate(filterCtx(Data{"status": "todo"}), `shout(status) == "todo!"`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result != true {
		t.Fatalf("result = %v, want true", result)
	}

	result, err = filter.Evaluate(filterCtx(Data{"status": "todo"}), `call("shout", status)`)
	if err != nil {
		t.Fatalf("Evaluate call(): %v", err)
	}
	if result != "todo!" {
		t.Fatalf("result = %v, want todo!", result)
	}
}

func TestExprFilterErrors(t *testing.T) {
	filter := NewExprFilter()

	if _, err := filter.Evaluate(filterCtx(nil), ""); err == nil {
		t.Fatalf("empty expression must error")
	}
	if _, err := filter.Compile(""); err == nil {
		t.Fatalf("empty expression must not compile")
	}

	_, err := filter.Compile(`status ==`)
	var filterErr *FilterError
	if !errors.As(err, &filterErr) {
		t.Fatalf("expected *FilterError for a syntax error, got %v", err)
	}
	if filterErr.Engine != "expr" {
		t.Fatalf("engine = %q, want expr", filterErr.Engine)
	}
}

func TestFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("Upper", func(args ...any) (any, error) { return "X", nil }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register("upper", func(args ...any) (any, error) { return "Y", nil }); err == nil {
		t.Fatalf("names are case-insensitive; duplicate must be rejected")
	}
	if err := registry.Register("", func(args ...any) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("empty name must be rejected")
	}
	if err := registry.Register("nilfn", nil); err == nil {
		t.Fatalf("nil function must be rejected")
	}

	result, err := registry.Call("UPPER")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != "X" {
		t.Fatalf("result = %v, want X", result)
	}
	if _, err := registry.Call("missing"); err == nil {
		t.Fatalf("unregistered function must error")
	}

	clone := registry.Clone()
	if err := clone.Register("extra", func(args ...any) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("Register on clone: %v", err)
	}
	if len(registry.Names()) != 1 || len(clone.Names()) != 2 {
		t.Fatalf("clone must be independent: %v vs %v", registry.Names(), clone.Names())
	}
}
