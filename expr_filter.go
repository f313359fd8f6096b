package hier

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprFilterOption configures an expr filter instance.
type ExprFilterOption func(*exprFilter)

// ExprWithProgramCache wires a ProgramCache into the expr filter.
func ExprWithProgramCache(cache ProgramCache) ExprFilterOption {
	return func(e *exprFilter) {
		e.cache = cache
	}
}

// ExprWithFunctionRegistry wires a FunctionRegistry into the expr filter.
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprFilterOption {
	return func(e *exprFilter) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// exprFilter executes filter expressions using github.com/expr-lang/expr.
type exprFilter struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewExprFilter constructs a FilterEvaluator backed by expr-lang/expr.
func NewExprFilter(opts ...ExprFilterOption) FilterEvaluator {
	e := &exprFilter{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Evaluate compiles and runs expression against ctx.Snapshot.
func (e *exprFilter) Evaluate(ctx FilterContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapFilterEngineError("expr", fmt.Errorf("expression must not be empty"))
	}
	ctx = ctx.withDefaultNow().withDefaultMaps()
	env := e.environment(ctx)
	if e.cache == nil {
		result, err := exprlang.Eval(expression, env)
		if err != nil {
			return nil, wrapFilterError("expr", expression, ctx.subject(), err)
		}
		return result, nil
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	result, err := exprlang.Run(program, env)
	if err != nil {
		return nil, wrapFilterError("expr", expression, ctx.subject(), err)
	}
	return result, nil
}

// Compile returns a compiled filter that evaluates expression per candidate.
func (e *exprFilter) Compile(expression string, _ ...CompileOption) (CompiledFilter, error) {
	if expression == "" {
		return nil, wrapFilterEngineError("expr", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &exprCompiledFilter{
		filter:     e,
		program:    program,
		expression: expression,
	}, nil
}

func (e *exprFilter) loadOrCompile(expression string) (*exprvm.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(expression); ok {
			if program, ok := cached.(*exprvm.Program); ok {
				return program, nil
			}
		}
	}
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range e.registryNames() {
		fn := e.registryFunction(name)
		options = append(options, exprlang.Function(name, fn))
	}
	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, wrapFilterError("expr", expression, "", err)
	}
	if e.cache != nil {
		e.cache.Set(expression, program)
	}
	return program, nil
}

type exprCompiledFilter struct {
	filter     *exprFilter
	program    *exprvm.Program
	expression string
}

func (f *exprCompiledFilter) Evaluate(ctx FilterContext) (any, error) {
	if f.filter == nil {
		return nil, wrapFilterEngineError("expr", fmt.Errorf("compiled filter missing evaluator"))
	}
	ctx = ctx.withDefaultNow().withDefaultMaps()
	if f.program == nil {
		return f.filter.Evaluate(ctx, f.expression)
	}
	env := f.filter.environment(ctx)
	result, err := exprlang.Run(f.program, env)
	if err != nil {
		return nil, wrapFilterError("expr", f.expression, ctx.subject(), err)
	}
	return result, nil
}

func (e *exprFilter) environment(ctx FilterContext) map[string]any {
	env := map[string]any{
		"now":  ctx.timestamp(),
		"args": ctx.Args,
		"meta": ctx.Meta,
	}
	for key, value := range ctx.Snapshot {
		env[key] = value
	}
	if e.registry != nil {
		env["call"] = func(name string, arguments ...any) (any, error) {
			return e.registry.Call(name, arguments...)
		}
		for _, name := range e.registry.Names() {
			fn := name
			env[fn] = func(arguments ...any) (any, error) {
				return e.registry.Call(fn, arguments...)
			}
		}
	}
	return env
}

func (e *exprFilter) registryNames() []string {
	if e == nil || e.registry == nil {
		return nil
	}
	return e.registry.Names()
}

func (e *exprFilter) registryFunction(name string) func(...any) (any, error) {
	if e == nil || e.registry == nil {
		return nil
	}
	return func(arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}
}
