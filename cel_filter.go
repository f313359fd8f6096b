package hier

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELFilterOption configures the CEL filter.
type CELFilterOption func(*celFilter)

// CELWithProgramCache wires a ProgramCache into the CEL filter.
func CELWithProgramCache(cache ProgramCache) CELFilterOption {
	return func(e *celFilter) {
		e.cache = cache
	}
}

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL filter.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELFilterOption {
	return func(e *celFilter) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

type celProgram struct {
	env     *celgo.Env
	program celgo.Program
}

type celFilter struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELFilter constructs a FilterEvaluator backed by cel-go.
func NewCELFilter(opts ...CELFilterOption) FilterEvaluator {
	e := &celFilter{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *celFilter) Evaluate(ctx FilterContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapFilterEngineError("cel", fmt.Errorf("expression must not be empty"))
	}
	ctx = ctx.withDefaultNow().withDefaultMaps()
	snapshot := snapshotAsMap(ctx.Snapshot)
	program, err := e.loadOrCompile(expression, snapshot)
	if err != nil {
		return nil, wrapFilterError("cel", expression, ctx.subject(), err)
	}
	out, _, err := program.program.Eval(e.activation(ctx, snapshot))
	if err != nil {
		return nil, wrapFilterError("cel", expression, ctx.subject(), err)
	}
	return out.Value(), nil
}

func (e *celFilter) Compile(expression string, _ ...CompileOption) (CompiledFilter, error) {
	if expression == "" {
		return nil, wrapFilterEngineError("cel", fmt.Errorf("expression must not be empty"))
	}
	return &celCompiledFilter{
		filter:     e,
		expression: expression,
	}, nil
}

func (e *celFilter) loadOrCompile(expression string, snapshot map[string]any) (*celProgram, error) {
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	if e.cache != nil {
		if cached, ok := e.cache.Get(expression); ok {
			if program, ok := cached.(*celProgram); ok {
				return program, nil
			}
		}
	}

	env, err := e.buildEnv(snapshot)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	checked, issues := env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := env.Program(checked)
	if err != nil {
		return nil, err
	}

	bundle := &celProgram{
		env:     env,
		program: prg,
	}
	if e.cache != nil {
		e.cache.Set(expression, bundle)
	}
	return bundle, nil
}

func (e *celFilter) buildEnv(snapshot map[string]any) (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("now", celgo.TimestampType),
		celgo.Variable("args", celgo.DynType),
		celgo.Variable("meta", celgo.DynType),
	}
	if e.registry != nil {
		callArgs := []*celgo.Type{celgo.StringType}
		callOpts := make([]celgo.FunctionOpt, 0, 6)
		for i := 0; i < 5; i++ {
			callOpts = append(callOpts, celgo.Overload(
				fmt.Sprintf("call_dyn_%d", i),
				append([]*celgo.Type(nil), callArgs...),
				celgo.DynType,
			))
			callArgs = append(callArgs, celgo.DynType)
		}
		callOpts = append(callOpts, celgo.SingletonFunctionBinding(e.callBinding()))
		opts = append(opts, celgo.Function("call", callOpts...))
	}
	for key := range snapshot {
		opts = append(opts, celgo.Variable(key, celgo.DynType))
	}
	return celgo.NewEnv(opts...)
}

func (e *celFilter) activation(ctx FilterContext, snapshot map[string]any) map[string]any {
	activation := map[string]any{
		"now":  ctx.timestamp(),
		"args": ctx.Args,
		"meta": ctx.Meta,
	}
	for key, value := range snapshot {
		activation[key] = value
	}
	if e.registry != nil {
		activation["call"] = func(name string, arguments ...any) (any, error) {
			return e.registry.Call(name, arguments...)
		}
	}
	return activation
}

type celCompiledFilter struct {
	filter     *celFilter
	expression string
}

func (f *celCompiledFilter) Evaluate(ctx FilterContext) (any, error) {
	if f.filter == nil {
		return nil, wrapFilterEngineError("cel", fmt.Errorf("compiled filter missing evaluator"))
	}
	return f.filter.Evaluate(ctx, f.expression)
}

func snapshotAsMap(snapshot Data) map[string]any {
	if snapshot == nil {
		return map[string]any{}
	}
	return snapshot
}

func (e *celFilter) callBinding() func(...ref.Val) ref.Val {
	return func(values ...ref.Val) ref.Val {
		if e.registry == nil {
			return types.NewErr("hier: function registry not configured")
		}
		if len(values) == 0 {
			return types.NewErr("hier: call requires function name")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("hier: call name must be string")
		}
		args := make([]any, 0, len(values)-1)
		for _, val := range values[1:] {
			args = append(args, val.Value())
		}
		result, err := e.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}
