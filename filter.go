package hier

import (
	"fmt"
	"sync"
	"time"
)

// FilterContext carries the inputs available to a list-filter expression.
type FilterContext struct {
	// Snapshot is the candidate context's data document; its keys are bound
	// as top-level variables in the expression environment.
	Snapshot Data
	// Meta exposes the candidate's envelope (id, level, parent_id, version).
	Meta map[string]any
	// Now pins the evaluation timestamp; defaults to the current time.
	Now *time.Time
	// Args carries caller-supplied parameters referenced by the expression.
	Args map[string]any
}

func (ctx FilterContext) withDefaultNow() FilterContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx FilterContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx FilterContext) withDefaultMaps() FilterContext {
	if ctx.Meta == nil {
		ctx.Meta = map[string]any{}
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	return ctx
}

func (ctx FilterContext) subject() string {
	level, _ := ctx.Meta["level"].(string)
	id, _ := ctx.Meta["id"].(string)
	if level == "" && id == "" {
		return "unknown"
	}
	return level + "/" + id
}

// FilterEvaluator executes filter expressions against candidate contexts.
type FilterEvaluator interface {
	Evaluate(ctx FilterContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledFilter, error)
}

// CompiledFilter represents a reusable filter program.
type CompiledFilter interface {
	Evaluate(ctx FilterContext) (any, error)
}

// CompileOption configures filter compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// ProgramCache stores compiled filter programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MemoryProgramCache is a trivial concurrency-safe ProgramCache.
type MemoryProgramCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

// NewMemoryProgramCache constructs an empty program cache.
func NewMemoryProgramCache() *MemoryProgramCache {
	return &MemoryProgramCache{programs: map[string]any{}}
}

// Get returns the cached program for key.
func (c *MemoryProgramCache) Get(key string) (any, bool) {
	c.mu.RLock()
	program, ok := c.programs[key]
	c.mu.RUnlock()
	return program, ok
}

// Set stores program under key.
func (c *MemoryProgramCache) Set(key string, program any) {
	c.mu.Lock()
	c.programs[key] = program
	c.mu.Unlock()
}

// filterMatch interprets an expression result as a match decision. Only
// booleans are accepted; anything else is an evaluator misuse surfaced to
// the caller.
func filterMatch(result any) (bool, error) {
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("hier: filter expression must yield a boolean, got %T", result)
	}
	return matched, nil
}
