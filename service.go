package hier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phamhung075/4genthub-sub021/pkg/activity"
)

// Service is the orchestrator external callers use. It composes the
// validator, stores, resolver, delegator, and resolution cache into the
// public operation set, each call scoped by the caller's already
// authenticated owner id — the service trusts that identity and never
// re-derives it.
//
// Ordering guarantee: for every mutation the cache invalidation completes
// before the result is returned, so no concurrent resolve can observe a
// merged view inconsistent with a just-committed write.
type Service struct {
	stores    StoreSet
	validator *Validator
	resolver  *Resolver
	delegator *Delegator
	cache     *ResolutionCache
	logger    OperationLogger
	emitter   *activity.Emitter
	filter    FilterEvaluator
	newID     func() string
	clock     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithOperationLogger attaches an operation logger.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(s *Service) {
		if logger == nil {
			s.logger = noopOperationLogger{}
			return
		}
		s.logger = logger
	}
}

// WithResolutionCache injects a caller-owned cache so its lifecycle (TTL,
// sweeper) stays under the caller's control.
func WithResolutionCache(cache *ResolutionCache) ServiceOption {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithActivityHooks registers mutation-event hooks.
func WithActivityHooks(hooks ...activity.ActivityHook) ServiceOption {
	return func(s *Service) {
		s.emitter = activity.NewEmitter(activity.Hooks(hooks), activity.Config{Enabled: true})
	}
}

// WithActivityEmitter injects a fully configured emitter, overriding
// WithActivityHooks.
func WithActivityEmitter(emitter *activity.Emitter) ServiceOption {
	return func(s *Service) {
		if emitter != nil {
			s.emitter = emitter
		}
	}
}

// WithFilterEvaluator selects the engine evaluating Filter.Expr on List.
func WithFilterEvaluator(evaluator FilterEvaluator) ServiceOption {
	return func(s *Service) {
		if evaluator != nil {
			s.filter = evaluator
		}
	}
}

// WithIDGenerator overrides how ids for unnamed contexts are minted.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs the orchestrator over a complete store set.
func NewService(stores StoreSet, opts ...ServiceOption) (*Service, error) {
	if err := stores.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		stores: stores,
		logger: noopOperationLogger{},
		filter: NewExprFilter(ExprWithProgramCache(NewMemoryProgramCache())),
		newID:  uuid.NewString,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.cache == nil {
		s.cache = NewResolutionCache()
	}
	if s.emitter == nil {
		s.emitter = activity.NewEmitter(nil, activity.Config{})
	}
	s.validator = NewValidator(stores)
	s.resolver = NewResolver(stores)
	s.delegator = NewDelegator(stores, s.resolver)
	return s, nil
}

// Cache exposes the service's resolution cache, mainly for tests and
// operational introspection.
func (s *Service) Cache() *ResolutionCache {
	return s.cache
}

type createConfig struct {
	autoCreateParents bool
}

// CreateOption configures a Create call.
type CreateOption func(*createConfig)

// WithAutoCreateParents opts into creating every missing ancestor, top-down
// with empty data, before the requested context is placed.
func WithAutoCreateParents() CreateOption {
	return func(cfg *createConfig) {
		cfg.autoCreateParents = true
	}
}

// Create places a new context at level. An empty id is replaced by a
// generated one. Without auto-create, a missing ancestor surfaces as a
// *GuidanceError carrying the remediation steps.
func (s *Service) Create(ctx context.Context, owner string, level Level, id string, data Data, opts ...CreateOption) (created *Context, err error) {
	start := time.Now()
	defer func() { s.finish("create", owner, level, id, start, err) }()
	if err = s.checkCall(ctx, owner, level); err != nil {
		return nil, err
	}
	if id == "" {
		id = s.newID()
	}
	cfg := createConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	data = data.Clone()
	if data == nil {
		data = Data{}
	}

	var parentID string
	if cfg.autoCreateParents {
		parentID, err = s.validator.AutoCreateParents(ctx, owner, level, id, data)
	} else {
		parentID, err = s.validator.ParentID(ctx, owner, level, id, data)
	}
	if err != nil {
		return nil, err
	}

	created, err = s.stores.For(level).Create(ctx, &Context{
		ID:          id,
		Level:       level,
		OwnerUserID: owner,
		ParentID:    parentID,
		Data:        data,
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(owner, level, id)
	s.emit(ctx, activity.VerbCreated, owner, level, id, map[string]any{"version": created.Version})
	return created, nil
}

// Get returns the context stored at (owner, level, id).
func (s *Service) Get(ctx context.Context, owner string, level Level, id string) (found *Context, err error) {
	start := time.Now()
	defer func() { s.finish("get", owner, level, id, start, err) }()
	if err = s.checkCall(ctx, owner, level); err != nil {
		return nil, err
	}
	return s.stores.For(level).Get(ctx, owner, id)
}

type updateConfig struct {
	expectedVersion int64
}

// UpdateOption configures an Update call.
type UpdateOption func(*updateConfig)

// WithExpectedVersion enables the optimistic concurrency check: the update
// fails with ErrConcurrentModification unless the stored version matches.
func WithExpectedVersion(version int64) UpdateOption {
	return func(cfg *updateConfig) {
		cfg.expectedVersion = version
	}
}

// Update deep-merges patch into the stored data (a nil value deletes the
// key) and bumps the version.
func (s *Service) Update(ctx context.Context, owner string, level Level, id string, patch Data, opts ...UpdateOption) (updated *Context, err error) {
	start := time.Now()
	defer func() { s.finish("update", owner, level, id, start, err) }()
	if err = s.checkCall(ctx, owner, level); err != nil {
		return nil, err
	}
	cfg := updateConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	updated, err = s.stores.For(level).Update(ctx, owner, id, patch, cfg.expectedVersion)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(owner, level, id)
	s.emit(ctx, activity.VerbUpdated, owner, level, id, map[string]any{"version": updated.Version})
	return updated, nil
}

// Delete removes a context. Referential integrity blocks the delete while
// any child references it, and the global root is never deletable.
func (s *Service) Delete(ctx context.Context, owner string, level Level, id string) (err error) {
	start := time.Now()
	defer func() { s.finish("delete", owner, level, id, start, err) }()
	if err = s.checkCall(ctx, owner, level); err != nil {
		return err
	}
	if level == LevelGlobal {
		return fmt.Errorf("%w: the global root is never deletable", ErrHasChildren)
	}
	childLevel := level.Child()
	if childLevel.Valid() {
		children, listErr := s.stores.For(childLevel).List(ctx, owner, ListFilter{ParentID: id})
		if listErr != nil {
			return listErr
		}
		if len(children) > 0 {
			return fmt.Errorf("%w: %s %q has %d %s child(ren)", ErrHasChildren, level, id, len(children), childLevel)
		}
	}

	if err = s.stores.For(level).Delete(ctx, owner, id); err != nil {
		return err
	}
	s.cache.Invalidate(owner, level, id)
	s.emit(ctx, activity.VerbDeleted, owner, level, id, nil)
	return nil
}

// Resolve returns the effective view of (owner, level, id): its data merged
// under every ancestor's, served from the cache when the chain's version
// fingerprint still matches current store state.
func (s *Service) Resolve(ctx context.Context, owner string, level Level, id string) (res *Resolution, err error) {
	start := time.Now()
	defer func() { s.finish("resolve", owner, level, id, start, err) }()
	if err = s.checkCall(ctx, owner, level); err != nil {
		return nil, err
	}

	chain, err := s.resolver.Chain(ctx, owner, level, id)
	if err != nil {
		return nil, err
	}
	fingerprint := FingerprintChain(chain)
	if cached, ok := s.cache.Lookup(owner, level, id, fingerprint); ok {
		return cached, nil
	}

	res = s.resolver.MergeChain(owner, chain)
	// A deadline hit mid-resolution must not leave a partial cache entry.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, deadlineErr(ctxErr)
	}
	s.cache.Store(res)
	return res, nil
}

// DelegateUp writes value under the target ancestor's data.custom[key].
func (s *Service) DelegateUp(ctx context.Context, owner string, fromLevel Level, fromID string, targetLevel Level, key string, value any) (err error) {
	start := time.Now()
	defer func() { s.finish("delegate_up", owner, fromLevel, fromID, start, err) }()
	if err = s.checkCall(ctx, owner, fromLevel); err != nil {
		return err
	}

	updated, err := s.delegator.DelegateUp(ctx, owner, fromLevel, fromID, targetLevel, key, value)
	if err != nil {
		return err
	}
	s.cache.Invalidate(owner, targetLevel, updated.ID)
	s.emit(ctx, activity.VerbDelegated, owner, targetLevel, updated.ID, map[string]any{
		"key":        key,
		"from_level": fromLevel.String(),
		"from_id":    fromID,
	})
	return nil
}

// Filter narrows a List call. Expr, when set, is evaluated against each
// candidate's data document with the configured filter engine; only
// contexts for which it yields true are returned.
type Filter struct {
	ParentID string
	IDs      []string
	Expr     string
	Args     map[string]any
}

// List returns the owner's contexts at level matching filter.
func (s *Service) List(ctx context.Context, owner string, level Level, filter Filter) (matches []*Context, err error) {
	start := time.Now()
	defer func() { s.finish("list", owner, level, "", start, err) }()
	if err = s.checkCall(ctx, owner, level); err != nil {
		return nil, err
	}

	contexts, err := s.stores.For(level).List(ctx, owner, ListFilter{
		ParentID: filter.ParentID,
		IDs:      filter.IDs,
	})
	if err != nil || filter.Expr == "" {
		return contexts, err
	}

	compiled, err := s.filter.Compile(filter.Expr)
	if err != nil {
		return nil, err
	}
	matches = contexts[:0]
	for _, candidate := range contexts {
		result, evalErr := compiled.Evaluate(FilterContext{
			Snapshot: candidate.Data,
			Meta: map[string]any{
				"id":        candidate.ID,
				"level":     candidate.Level.String(),
				"parent_id": candidate.ParentID,
				"version":   candidate.Version,
			},
			Args: filter.Args,
		})
		if evalErr != nil {
			return nil, evalErr
		}
		matched, matchErr := filterMatch(result)
		if matchErr != nil {
			return nil, matchErr
		}
		if matched {
			matches = append(matches, candidate)
		}
	}
	return matches, nil
}

func (s *Service) checkCall(ctx context.Context, owner string, level Level) error {
	if err := ctx.Err(); err != nil {
		return deadlineErr(err)
	}
	if owner == "" {
		return fmt.Errorf("hier: owner id is required")
	}
	if !level.Valid() {
		return fmt.Errorf("hier: invalid level %d", level)
	}
	return nil
}

func (s *Service) finish(op, owner string, level Level, id string, start time.Time, err error) {
	s.logger.LogOperation(OperationLogEvent{
		Op:       op,
		Owner:    owner,
		Level:    level,
		ID:       id,
		Duration: time.Since(start),
		Err:      err,
	})
}

func (s *Service) emit(ctx context.Context, verb, owner string, level Level, id string, metadata map[string]any) {
	if !s.emitter.Enabled() {
		return
	}
	_ = s.emitter.Emit(ctx, activity.Event{
		Verb:       verb,
		ActorID:    owner,
		UserID:     owner,
		ObjectType: level.String(),
		ObjectID:   id,
		Metadata:   metadata,
		OccurredAt: s.clock(),
	})
}
